package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

func formatStats(stats meshStats, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatJSONIndent(stats)
	case formatTable:
		return formatStatsTable(stats), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatPeers(peers []meshPeer, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatJSONIndent(peers)
	case formatTable:
		return formatPeersTable(peers), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatAction(result actionResult, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatJSONIndent(result)
	case formatTable:
		return fmt.Sprintf("%s: %s\n", result.Action, result.Peer), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatEvent(ev securityEvent, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatJSONIndent(ev)
	case formatTable:
		return formatEventLine(ev), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatJSONIndent(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal to JSON: %w", err)
	}
	return string(data), nil
}

func formatStatsTable(s meshStats) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "Peers Connected:\t%d\n", s.PeersConnected)
	fmt.Fprintf(w, "Outbound Queue Depth:\t%d\n", s.OutboundQueueDepth)
	fmt.Fprintf(w, "Dedup Cache:\t%d/%d\n", s.DedupCacheOccupancy, s.DedupCacheCapacity)
	fmt.Fprintf(w, "Trust (trusted/normal/suspicious/untrusted/blacklisted):\t%d/%d/%d/%d/%d\n",
		s.Trust.Trusted, s.Trust.Normal, s.Trust.Suspicious, s.Trust.Untrusted, s.Trust.Blacklisted)
	fmt.Fprintf(w, "Trust Average:\t%.1f\n", s.Trust.Average)
	fmt.Fprintf(w, "Flood (strike1/strike2/final/banned):\t%d/%d/%d/%d\n",
		s.Flood.Strike1, s.Flood.Strike2, s.Flood.StrikeFinal, s.Flood.CurrentlyBanned)

	w.Flush()
	return buf.String()
}

func formatPeersTable(peers []meshPeer) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PEER\tTRUST SCORE\tTIER")

	for _, p := range peers {
		fmt.Fprintf(w, "%s\t%d\t%s\n", p.ID, p.Score, p.Tier)
	}

	w.Flush()
	return buf.String()
}

func formatEventLine(ev securityEvent) string {
	return fmt.Sprintf("[%s] %s  peer=%s  severity=%s  detail=%s",
		ev.At, ev.Kind, ev.Peer, ev.Severity, ev.Detail)
}
