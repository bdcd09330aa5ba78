// Package diag renders subjects and the registry for humans and snapshots.
package diag

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/maxpert/herald/encoding"
	"github.com/maxpert/herald/mask"
	"github.com/maxpert/herald/observe"
	"github.com/maxpert/herald/pool"
	"github.com/maxpert/herald/registry"
)

// Describe returns name(size){#id,#id,...} in traversal order.
func Describe(s *observe.Subject) string {
	var b strings.Builder
	b.WriteString(s.Name())
	b.WriteByte('(')
	b.WriteString(strconv.Itoa(s.Size()))
	b.WriteString("){")
	for i, sub := range s.List() {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('#')
		b.WriteString(strconv.FormatUint(sub.SubscriberIdentity().ID(), 10))
	}
	b.WriteByte('}')
	return b.String()
}

// SubjectReport is a point-in-time view of one subject.
type SubjectReport struct {
	Name         string     `json:"name" msgpack:"name"`
	ID           uint64     `json:"id" msgpack:"id"`
	Size         int        `json:"size" msgpack:"size"`
	Identities   []uint64   `json:"identities" msgpack:"identities"`
	Digest       uint64     `json:"digest" msgpack:"digest"`
	Muted        uint32     `json:"muted" msgpack:"muted"`
	Broadcasting bool       `json:"broadcasting" msgpack:"broadcasting"`
	Pool         pool.Stats `json:"pool" msgpack:"pool"`
}

// Report is a snapshot of every registered subject.
type Report struct {
	Timestamp   int64           `json:"timestamp" msgpack:"timestamp"`
	Subjects    []SubjectReport `json:"subjects" msgpack:"subjects"`
	Subscribers int             `json:"subscribers" msgpack:"subscribers"`
}

// inspectable is what a registry entry must offer beyond registry.Entry to
// be reported in full. *observe.Subject satisfies it.
type inspectable interface {
	List() []observe.Subscriber
	Muted() mask.Code
	Broadcasting() bool
	PoolStats() pool.Stats
}

// Inspect builds the report for one subject.
func Inspect(s *observe.Subject) SubjectReport {
	return inspect(s)
}

func inspect(e registry.Entry) SubjectReport {
	r := SubjectReport{
		Name: e.Name(),
		ID:   e.ID(),
		Size: e.Size(),
	}

	if in, ok := e.(inspectable); ok {
		subs := in.List()
		r.Identities = make([]uint64, 0, len(subs))
		for _, sub := range subs {
			r.Identities = append(r.Identities, sub.SubscriberIdentity().ID())
		}
		r.Muted = uint32(in.Muted())
		r.Broadcasting = in.Broadcasting()
		r.Pool = in.PoolStats()
	}
	r.Digest = Digest(r.Identities)
	return r
}

// Digest hashes an identity set independent of its order.
func Digest(ids []uint64) uint64 {
	sorted := append([]uint64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	d := xxhash.New()
	var buf [8]byte
	for _, id := range sorted {
		binary.LittleEndian.PutUint64(buf[:], id)
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}

// Collect reports every subject in reg ordered by id. It reads subject
// internals, so call it from the goroutine that owns the subjects.
func Collect(reg *registry.Registry) Report {
	return collect(reg.Entries())
}

// CollectMatching reports the subjects whose names match a glob pattern.
func CollectMatching(reg *registry.Registry, pattern string) (Report, error) {
	entries, err := reg.Match(pattern)
	if err != nil {
		return Report{}, err
	}
	return collect(entries), nil
}

func collect(entries []registry.Entry) Report {
	r := Report{
		Timestamp: time.Now().UnixNano(),
		Subjects:  make([]SubjectReport, 0, len(entries)),
	}
	for _, e := range entries {
		sr := inspect(e)
		r.Subscribers += sr.Size
		r.Subjects = append(r.Subjects, sr)
	}
	return r
}

// Find returns the report of the subject called name.
func (r Report) Find(name string) (SubjectReport, bool) {
	for _, s := range r.Subjects {
		if s.Name == name {
			return s, true
		}
	}
	return SubjectReport{}, false
}

// Encode serializes a report for /snapshot and dump files.
func Encode(r Report) ([]byte, error) {
	data, err := encoding.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return data, nil
}

// Decode reverses Encode.
func Decode(data []byte) (Report, error) {
	var r Report
	if err := encoding.Unmarshal(data, &r); err != nil {
		return Report{}, fmt.Errorf("decode report: %w", err)
	}
	return r, nil
}

// Format renders a report as one line per subject.
func Format(r Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "subjects=%d subscribers=%d\n", len(r.Subjects), r.Subscribers)
	for _, s := range r.Subjects {
		fmt.Fprintf(&b, "%s(%d){", s.Name, s.Size)
		for i, id := range s.Identities {
			if i > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "#%d", id)
		}
		fmt.Fprintf(&b, "} id=%d digest=%016x muted=%#x pool=%d/%d allocs=%d\n",
			s.ID, s.Digest, s.Muted, s.Pool.Free, s.Pool.Capacity, s.Pool.Allocations)
	}
	return b.String()
}

// Dump collects and formats reg.
func Dump(reg *registry.Registry) string {
	return Format(Collect(reg))
}
