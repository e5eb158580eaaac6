// Command 391os boots the kernel against a disk image built by
// cmd/mkimage, the Go-native replacement for a bootloader handing
// control to kernel.c's init(): there's no GRUB stage here, just a flag
// parse and a call to kernel.New/kernel.Boot.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"n391kernel/src/kernel"
)

func main() {
	imagePath := flag.String("image", "image.bin", "path to a disk image built by cmd/mkimage")
	pitHz := flag.Int("pit-hz", 0, "PIT tick rate in Hz (0 picks the original's 20Hz default)")
	jsonLogs := flag.Bool("json-logs", false, "emit structured logs as JSON instead of text")
	flag.Parse()

	var handler slog.Handler
	if *jsonLogs {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	} else {
		handler = slog.NewTextHandler(os.Stderr, nil)
	}
	logger := slog.New(handler)

	img, err := os.ReadFile(*imagePath)
	if err != nil {
		log.Fatalf("391os: %v", err)
	}

	k, err := kernel.New(img, kernel.Config{PITHz: *pitHz}, logger)
	if err != nil {
		log.Fatalf("391os: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("391os booting", "image", *imagePath)
	if err := k.Boot(ctx); err != nil && ctx.Err() == nil {
		logger.Error("kernel halted unexpectedly", "err", err)
		os.Exit(1)
	}
}
