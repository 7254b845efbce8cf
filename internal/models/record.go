// Package models defines the data types shared across the benchmark
// pipeline: invocation records, benchmark targets, and the raw telemetry
// entries fetched back from provider log backends.
package models

import (
	"fmt"
	"sort"
	"time"
)

// InvocationRecord is the client-side measurement of a single function
// invocation. ClientBegin and ClientEnd are unix microseconds taken
// immediately around the HTTP round trip; ClientTime is their difference in
// seconds. ProviderTime is filled in later by reconciliation and stays nil
// for invocations that never matched a telemetry entry.
type InvocationRecord struct {
	RequestID    string   `json:"request_id"`
	ClientBegin  int64    `json:"client_begin"`
	ClientEnd    int64    `json:"client_end"`
	ClientTime   float64  `json:"client_time"`
	ResponseBody any      `json:"response_body"`
	ProviderTime *float64 `json:"provider_time,omitempty"`
}

// IsCold reports whether the function instance that served this invocation
// was a cold start, based on the is_cold field benchmarks include in their
// response body. Unparseable or missing fields count as warm.
func (r *InvocationRecord) IsCold() bool {
	body, ok := r.ResponseBody.(map[string]any)
	if !ok {
		return false
	}
	switch v := body["is_cold"].(type) {
	case bool:
		return v
	case float64:
		return v != 0
	default:
		return false
	}
}

// SetProviderTime records the provider-reported execution time in seconds.
func (r *InvocationRecord) SetProviderTime(d time.Duration) {
	secs := d.Seconds()
	r.ProviderTime = &secs
}

// RunRecordSet collects the verified records of one benchmark run, keyed by
// correlation id.
type RunRecordSet map[string]*InvocationRecord

// Add inserts a record. Correlation ids must be unique within a run; a
// duplicate indicates the provider handed out the same id twice.
func (s RunRecordSet) Add(rec *InvocationRecord) error {
	if rec.RequestID == "" {
		return fmt.Errorf("invocation record has no request id")
	}
	if _, exists := s[rec.RequestID]; exists {
		return fmt.Errorf("duplicate request id %q in record set", rec.RequestID)
	}
	s[rec.RequestID] = rec
	return nil
}

// Pending returns the sorted ids of records that still lack a provider-side
// execution time.
func (s RunRecordSet) Pending() []string {
	var ids []string
	for id, rec := range s {
		if rec.ProviderTime == nil {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// SetProviderTime assigns a provider execution time to the record with the
// given id, overwriting any prior value. Returns false if the id is unknown.
func (s RunRecordSet) SetProviderTime(id string, d time.Duration) bool {
	rec, ok := s[id]
	if !ok {
		return false
	}
	rec.SetProviderTime(d)
	return true
}
