package transcribe

import "podscribe/internal/services/tongyi"

// matchTask correlates a local episode with its remote job. The registry
// offers no foreign key, so correlation rests on the job title equaling the
// episode id set at submission time. All correlation goes through this one
// function so a stronger scheme can replace string equality later.
func matchTask(tasks []tongyi.Task, episodeID string) (tongyi.Task, bool) {
	for _, task := range tasks {
		if task.Title == episodeID {
			return task, true
		}
	}
	return tongyi.Task{}, false
}
