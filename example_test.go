// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux || darwin || freebsd || openbsd

package cosched_test

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-cosched"
)

func ExampleGo() {
	wg := cosched.NewWaitGroup()
	wg.Add(4)

	var n atomic.Int32
	for i := 0; i < 4; i++ {
		cosched.Go(func() {
			cosched.Sleep(time.Millisecond)
			n.Add(1)
			wg.Done()
		})
	}
	wg.Wait()

	fmt.Println(n.Load(), "tasks done")
	// Output: 4 tasks done
}

func ExampleMutex() {
	m := cosched.NewMutex()
	wg := cosched.NewWaitGroup()
	wg.Add(2)

	total := 0
	for i := 0; i < 2; i++ {
		cosched.Go(func() {
			for j := 0; j < 100; j++ {
				m.Lock()
				total++
				m.Unlock()
			}
			wg.Done()
		})
	}
	wg.Wait()

	fmt.Println(total)
	// Output: 200
}
