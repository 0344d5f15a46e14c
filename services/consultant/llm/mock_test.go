// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestMockClient_CompleteStream(t *testing.T) {
	client := NewMockClient()
	client.QueueFinalResponse("a streamed consultation answer")

	stream, err := client.CompleteStream(context.Background(), &Request{})
	if err != nil {
		t.Fatalf("CompleteStream failed: %v", err)
	}

	text, response, err := JoinFragments(stream)
	if err != nil {
		t.Fatalf("stream carried an error: %v", err)
	}
	if text != "a streamed consultation answer" {
		t.Errorf("fragments did not reassemble the content, got %q", text)
	}
	if response == nil || response.Content != text {
		t.Errorf("Done fragment should carry the assembled response, got %+v", response)
	}
}

func TestMockClient_CompleteStreamAbandonedOnCancel(t *testing.T) {
	before := runtime.NumGoroutine()

	// An abandoned consumer must not strand the producer goroutine:
	// read one fragment, cancel, and walk away without draining.
	for i := 0; i < 8; i++ {
		client := NewMockClient()
		client.QueueFinalResponse(strings.Repeat("a long streamed clinical answer ", 32))

		ctx, cancel := context.WithCancel(context.Background())
		stream, err := client.CompleteStream(ctx, &Request{})
		if err != nil {
			cancel()
			t.Fatalf("CompleteStream failed: %v", err)
		}
		<-stream
		cancel()
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		runtime.GC()
		if runtime.NumGoroutine() <= before {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Errorf("producer goroutines did not exit: %d before, %d after",
		before, runtime.NumGoroutine())
}

func TestMockClient_CompleteStreamCancelSignalsListener(t *testing.T) {
	client := NewMockClient()
	client.QueueFinalResponse(strings.Repeat("fragment ", 64))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := client.CompleteStream(ctx, &Request{})
	if err != nil {
		t.Fatalf("CompleteStream failed: %v", err)
	}

	// A consumer that keeps listening after cancellation sees the
	// stream terminate promptly, either with a Done error fragment or
	// a plain close.
	<-stream
	cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range stream {
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not terminate after cancellation")
	}
}
