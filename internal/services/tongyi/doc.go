// Package tongyi implements the transcription service client. It manages
// remote folders, resolves podcast audio URLs into service-side files,
// submits transcription batches, and retrieves finished transcripts and
// their annotation cards.
package tongyi
