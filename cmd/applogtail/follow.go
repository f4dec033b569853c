package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fsnotify/fsnotify"
)

// tail passes every line of the file at path to emit. With follow set it keeps
// passing lines appended later, until ctx is done or the file is removed or renamed.
func tail(ctx context.Context, path string, follow bool, emit func([]byte)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	lr := &lineReader{r: bufio.NewReader(f)}
	if !follow {
		if err := lr.drain(emit); err != nil {
			return err
		}
		lr.flush(emit)
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch before the first read so that no write goes unnoticed.
	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("watching %s: %w", path, err)
	}
	if err := lr.drain(emit); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			lr.flush(emit)
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			switch {
			case event.Has(fsnotify.Write):
				if err := lr.drain(emit); err != nil {
					return err
				}
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				lr.flush(emit)
				return nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watching %s: %w", path, err)
		}
	}
}

// lineReader splits a growing file into lines, holding back a trailing partial line.
type lineReader struct {
	r       *bufio.Reader
	pending []byte
}

func (lr *lineReader) drain(emit func([]byte)) error {
	for {
		chunk, err := lr.r.ReadBytes('\n')
		lr.pending = append(lr.pending, chunk...)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		lr.emitPending(emit)
	}
}

func (lr *lineReader) flush(emit func([]byte)) {
	if len(lr.pending) > 0 {
		lr.emitPending(emit)
	}
}

func (lr *lineReader) emitPending(emit func([]byte)) {
	line := bytes.TrimRight(lr.pending, "\r\n")
	lr.pending = nil
	if len(line) > 0 {
		emit(line)
	}
}
