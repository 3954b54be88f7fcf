// Package rss renders per-podcast RSS 2.0 feeds whose items embed the full
// transcript document as HTML content.
package rss
