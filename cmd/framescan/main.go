// Command framescan reads one or more raw MPEG-2 video elementary-stream
// files, drives a mpeg2video.Framer over each, and prints a one-line summary
// per decoded picture. It does no network I/O and is not a media server: it
// exists to exercise the framer from the command line the way test/tools
// exercises the demuxer in the corpus this core was extracted from.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/framecore/internal/dictpool"
	"github.com/zsiec/framecore/internal/mpeg2video"
	"github.com/zsiec/framecore/uref"
)

func main() {
	verbose := flag.Bool("verbose", false, "dump the attribute dictionary of every emitted frame")
	insertSeq := flag.Bool("insert-sequence", false, "prepend a cached sequence header to random-access frames that lack one")
	flag.Parse()

	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: framescan [-verbose] [-insert-sequence] file [file...]")
		os.Exit(2)
	}

	g, _ := errgroup.WithContext(context.Background())
	for _, path := range args {
		path := path
		g.Go(func() error {
			return scanFile(path, *verbose, *insertSeq)
		})
	}
	if err := g.Wait(); err != nil {
		slog.Error("scan failed", "error", err)
		os.Exit(1)
	}
}

func scanFile(path string, verbose, insertSeq bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer f.Close()

	log := slog.Default().With("file", path)
	mgr := dictpool.NewManager(nil, dictpool.WithLogger(log))
	count := 0

	framer := mpeg2video.NewFramer(mgr,
		mpeg2video.WithLogger(log),
		mpeg2video.WithSequenceInsertion(insertSeq),
		mpeg2video.WithEventHandler(func(e mpeg2video.Event) {
			switch e.Kind {
			case mpeg2video.EventSyncAcquired:
				log.Info("sync acquired")
			case mpeg2video.EventSyncLost:
				log.Warn("sync lost")
			case mpeg2video.EventNewFlowDefinition:
				log.Info("new flow definition", "def", e.FlowDef.Def, "hsize", e.FlowDef.HSize, "vsize", e.FlowDef.VSize)
			case mpeg2video.EventAllocationError, mpeg2video.EventFlowDefinitionError:
				log.Error("framer error", "err", e.Err)
			}
		}),
		mpeg2video.WithFrameHandler(func(out *uref.Uref) {
			count++
			printSummary(os.Stdout, path, count, out)
			if verbose {
				fmt.Fprintf(os.Stdout, "  attributes:\n")
				if err := out.Dict().Dump(prefixWriter{os.Stdout, "    "}); err != nil {
					log.Warn("dump failed", "err", err)
				}
			}
			out.Release()
		}),
	)
	defer framer.Close()

	const chunkSize = 4096
	r := bufio.NewReader(f)
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			block := make([]byte, n)
			copy(block, buf[:n])
			d, ok := mgr.Alloc(mgr.ExtraSize())
			if !ok {
				return fmt.Errorf("%s: dictionary allocation failed", path)
			}
			framer.ProcessInput(uref.New(mgr, d, block))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

func printSummary(w io.Writer, path string, seq int, out *uref.Uref) {
	pts, hasPTS := out.PTS()
	ptsStr := "-"
	if hasPTS {
		ptsStr = fmt.Sprintf("%d", pts)
	}
	fmt.Fprintf(w, "%s #%d pts=%s rap=%t\n", path, seq, ptsStr, out.IsRandomAccess())
}

// prefixWriter indents every line written to it by prefix, for nesting the
// dictionary dump under a frame summary line.
type prefixWriter struct {
	w      io.Writer
	prefix string
}

func (p prefixWriter) Write(b []byte) (int, error) {
	if _, err := io.WriteString(p.w, p.prefix); err != nil {
		return 0, err
	}
	return p.w.Write(b)
}
