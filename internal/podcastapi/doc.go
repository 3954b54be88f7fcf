// Package podcastapi implements the client for the proprietary podcast
// subscription platform: subscription and episode listing with loadMoreKey
// pagination, refresh-token authentication, and normalization into the
// episode record the transcription pipeline consumes.
package podcastapi
