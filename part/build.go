package part

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/emersion/go-imap/v2"
)

// ErrStructureUnavailable is returned when neither the session's structure
// nor the raw header and body yield a tree.
var ErrStructureUnavailable = errors.New("message structure unavailable")

// RepairFunc decides between the tree converted from the session's
// structure and the one reconstructed from raw text. It returns the tree to
// keep.
type RepairFunc func(reported, reconstructed *Node) *Node

// PreferDifferentCount keeps the reconstructed tree whenever its root has a
// different number of children than the reported one.
//
// This is a heuristic. A boundary string that happens to occur inside
// encoded content fools the reconstruction as easily as a vendor quirk fools
// the server, so neither side is authoritative.
func PreferDifferentCount(reported, reconstructed *Node) *Node {
	if len(reconstructed.Children) != len(reported.Children) {
		return reconstructed
	}
	return reported
}

// Options configures Build.
type Options struct {
	Logger *slog.Logger

	// Repair picks a tree when the reported structure looks unreliable.
	// Defaults to PreferDifferentCount.
	Repair RepairFunc

	// OnRepair is called when the reconstructed tree replaced the reported
	// one.
	OnRepair func(reported, reconstructed int)
}

// Build returns the MIME tree of one message. With a hint from the session
// the tree is converted from it; a multipart root with fewer than two
// children is distrusted and checked against a reconstruction from the raw
// header and body. Without a hint the tree is reconstructed directly.
func Build(ctx context.Context, f Fetcher, hint imap.BodyStructure, opts Options) (*Node, error) {
	if hint == nil {
		return reconstructFrom(ctx, f, opts.Logger)
	}

	reported := FromNative(hint)
	if !distrusted(reported) {
		return reported, nil
	}

	reconstructed, err := reconstructFrom(ctx, f, opts.Logger)
	if err != nil {
		if opts.Logger != nil {
			opts.Logger.Debug("Raw structure unavailable, keeping reported structure", "err", err)
		}
		return reported, nil
	}

	repair := opts.Repair
	if repair == nil {
		repair = PreferDifferentCount
	}
	chosen := repair(reported, reconstructed)
	if chosen == reconstructed {
		if opts.Logger != nil {
			opts.Logger.Warn("Reported structure replaced by raw reconstruction",
				"children", len(reported.Children),
				"fallbackChildren", len(reconstructed.Children))
		}
		if opts.OnRepair != nil {
			opts.OnRepair(len(reported.Children), len(reconstructed.Children))
		}
	}
	return chosen, nil
}

func distrusted(root *Node) bool {
	return root.IsMultipart() && len(root.Children) < 2
}

func reconstructFrom(ctx context.Context, f Fetcher, logger *slog.Logger) (*Node, error) {
	header, err := f.FetchHeader(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch header: %w", ErrStructureUnavailable, err)
	}
	if len(header) == 0 {
		return nil, fmt.Errorf("%w: empty header", ErrStructureUnavailable)
	}

	body, err := f.FetchBody(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("%w: fetch body: %w", ErrStructureUnavailable, err)
	}

	root, err := Reconstruct(header, body)
	if err != nil && logger != nil {
		logger.Debug("Skipped malformed header lines", "err", err)
	}
	return root, nil
}
