package transport

import (
	"errors"
	"fmt"
	"sync"
)

// Fake is an in-memory Transport that replays canned responses. It records
// every request it receives.
type Fake struct {
	Class Class
	// Respond answers a request. A nil Respond fails every request with
	// NotSupported.
	Respond func(req Request) ([]byte, error)

	mu       sync.Mutex
	requests []Request
	closes   int
}

// Send records req and returns a copy of the canned answer.
func (f *Fake) Send(req Request) (Response, error) {
	if err := checkRequest(req); err != nil {
		return Response{}, err
	}

	f.mu.Lock()
	rec := req
	rec.Command = append([]byte(nil), req.Command...)
	f.requests = append(f.requests, rec)
	closed := f.closes > 0
	f.mu.Unlock()

	if closed {
		return Response{}, &Error{Kind: IOFailure, Op: "send", Err: errors.New("handle is closed")}
	}
	if f.Respond == nil {
		return Response{}, &Error{Kind: NotSupported, Op: "send"}
	}

	data, err := f.Respond(req)
	if err != nil {
		return Response{}, err
	}
	if len(data) < req.Length {
		return Response{}, &Error{Kind: IOFailure, Op: "send", Err: fmt.Errorf("%w: %d of %d bytes", ErrShortResponse, len(data), req.Length)}
	}

	out := make([]byte, req.Length)
	copy(out, data)
	return Response{Data: out}, nil
}

// Probe returns the configured class.
func (f *Fake) Probe() (Class, error) {
	return f.Class, nil
}

// Close counts calls.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

// Requests returns the requests seen so far.
func (f *Fake) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Request, len(f.requests))
	copy(out, f.requests)
	return out
}

// Closes returns how many times Close was called.
func (f *Fake) Closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}
