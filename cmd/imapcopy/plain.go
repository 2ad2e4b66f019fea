package main

import (
	"context"
	"fmt"

	"github.com/schollz/progressbar/v3"

	"github.com/pepperpark/imapcopy/internal/syncer"
)

// runPlain renders one progress bar per folder on a dumb terminal.
func runPlain(ctx context.Context, worker *syncer.Syncer) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- worker.Run(ctx)
	}()

	var bar *progressbar.ProgressBar
	for ev := range worker.Events() {
		switch ev.Type {
		case syncer.EventScanFolder:
			fmt.Printf("Scanning %s\n", ev.Folder)
		case syncer.EventFolderStart:
			bar = progressbar.NewOptions(ev.Total,
				progressbar.OptionSetDescription(ev.Folder))
		case syncer.EventFolderProgress:
			if bar != nil {
				_ = bar.Set(ev.Done)
			}
		case syncer.EventFolderDone:
			if bar != nil {
				_ = bar.Finish()
				bar = nil
				fmt.Println()
			}
		}
	}
	return <-errCh
}

// runPlainCount renders a single bar for count-based operations.
func runPlainCount(title string, total int, progressCh <-chan int, errc <-chan error) error {
	bar := progressbar.NewOptions(total, progressbar.OptionSetDescription(title))
	for range progressCh {
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	fmt.Println()
	return <-errc
}
