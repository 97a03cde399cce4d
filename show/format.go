/*
NAME
  format.go

DESCRIPTION
  format.go holds the small human-display formatters shared by the
  human-readable renderer: byte counts as KB/MB/GB and durations as
  H:MM:SS.ss / M:SS.ss / S.ss s.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package show

import "fmt"

const (
	kb = 1024
	mb = kb * 1024
	gb = mb * 1024
)

func formatSize(bytes int64) string {
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.2f GB", float64(bytes)/gb)
	case bytes >= mb:
		return fmt.Sprintf("%.2f MB", float64(bytes)/mb)
	case bytes >= kb:
		return fmt.Sprintf("%.2f KB", float64(bytes)/kb)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

func formatDuration(seconds float64) string {
	switch {
	case seconds >= 3600:
		hours := int(seconds / 3600)
		minutes := int(seconds/60) % 60
		secs := seconds - float64(hours*3600) - float64(minutes*60)
		return fmt.Sprintf("%d:%02d:%05.2f", hours, minutes, secs)
	case seconds >= 60:
		minutes := int(seconds / 60)
		secs := seconds - float64(minutes*60)
		return fmt.Sprintf("%d:%05.2f", minutes, secs)
	default:
		return fmt.Sprintf("%.2f s", seconds)
	}
}
