// Package transcribe contains the transcription pipeline core: the
// eligibility filter that selects episodes, the orchestrator that drives
// batches through the remote service, and the assembler that turns remote
// results into persisted transcript documents.
package transcribe
