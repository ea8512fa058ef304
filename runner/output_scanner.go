package runner

import (
	"bytes"
	"strings"
	"sync"

	"github.com/acarl005/stripansi"
)

const (
	maxStatusTokenBytes   = 256
	maxFailureDetailBytes = 1024 * 1024
)

var (
	statusMarkerBytes  = []byte(StatusMarker)
	failMarkerBytes    = []byte(FailErrorMarker)
	accuracyKeyword    = []byte(AccuracyKeyword)
	performanceKeyword = []byte(PerformanceKeyword)
	markerHoldBack     = max(len(StatusMarker), len(FailErrorMarker)) - 1
	keywordHoldBack    = max(len(AccuracyKeyword), len(PerformanceKeyword)) - 1
)

// OutputMarkers is what classification reads from the complete stdout of a case
type OutputMarkers struct {
	Token       string // Text after the last status marker, up to the end of its line
	TokenFound  bool
	Detail      string // Text between the last fail marker and the next status marker
	Accuracy    bool
	Performance bool
}

type markerEvent int

const (
	eventNone markerEvent = iota
	eventNewline
	eventStatus
	eventFail
)

// markerScanner watches the stdout stream as it is written, so markers and
// keywords are found no matter how much output precedes or follows them.
// Markers and keywords split across writes are matched.
type markerScanner struct {
	mu sync.Mutex

	pending []byte
	kwTail  []byte

	accuracy    bool
	performance bool

	tokenFound bool
	inToken    bool
	token      []byte

	inDetail bool
	detail   []byte
}

func newMarkerScanner() *markerScanner {
	return &markerScanner{}
}

// ScanOutput scans a complete output in one pass
func ScanOutput(output string) OutputMarkers {
	s := newMarkerScanner()
	_, _ = s.Write([]byte(output))
	return s.Markers()
}

func (s *markerScanner) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.scanKeywords(p)
	s.pending = append(s.pending, p...)
	s.consume(len(s.pending) - markerHoldBack)
	return len(p), nil
}

// Markers flushes the held back bytes and returns what was found so far
func (s *markerScanner) Markers() OutputMarkers {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.consume(len(s.pending))
	return OutputMarkers{
		Token:       strings.TrimSpace(string(s.token)),
		TokenFound:  s.tokenFound,
		Detail:      strings.TrimSpace(stripansi.Strip(string(s.detail))),
		Accuracy:    s.accuracy,
		Performance: s.performance,
	}
}

func (s *markerScanner) scanKeywords(p []byte) {
	if s.accuracy && s.performance {
		return
	}
	window := make([]byte, 0, len(s.kwTail)+len(p))
	window = append(window, s.kwTail...)
	window = append(window, p...)

	if bytes.Contains(window, accuracyKeyword) {
		s.accuracy = true
	}
	if bytes.Contains(window, performanceKeyword) {
		s.performance = true
	}
	keep := min(len(window), keywordHoldBack)
	s.kwTail = append(s.kwTail[:0], window[len(window)-keep:]...)
}

// consume handles every event starting before limit. A marker starting
// before limit always ends inside pending.
func (s *markerScanner) consume(limit int) {
	buf := s.pending
	i := 0
	for i < limit {
		next, event := s.nextEvent(buf, i, limit)
		s.capture(buf[i:next])
		i = next

		switch event {
		case eventNewline:
			s.inToken = false
			if s.inDetail {
				s.detail = appendCapped(s.detail, buf[i:i+1], maxFailureDetailBytes)
			}
			i++
		case eventStatus:
			s.tokenFound = true
			s.inToken = true
			s.token = s.token[:0]
			s.inDetail = false
			i += len(statusMarkerBytes)
		case eventFail:
			if s.inToken {
				s.token = appendCapped(s.token, failMarkerBytes, maxStatusTokenBytes)
			}
			s.inDetail = true
			s.detail = s.detail[:0]
			i += len(failMarkerBytes)
		}
	}
	s.pending = append(s.pending[:0], buf[i:]...)
}

func (s *markerScanner) nextEvent(buf []byte, from, limit int) (int, markerEvent) {
	next, event := limit, eventNone
	if s.inToken {
		if j := bytes.IndexByte(buf[from:limit], '\n'); j >= 0 {
			next, event = from+j, eventNewline
		}
	}
	if j := bytes.Index(buf[from:], statusMarkerBytes); j >= 0 && from+j < next {
		next, event = from+j, eventStatus
	}
	if j := bytes.Index(buf[from:], failMarkerBytes); j >= 0 && from+j < next {
		next, event = from+j, eventFail
	}
	return next, event
}

func (s *markerScanner) capture(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	if s.inToken {
		s.token = appendCapped(s.token, chunk, maxStatusTokenBytes)
	}
	if s.inDetail {
		s.detail = appendCapped(s.detail, chunk, maxFailureDetailBytes)
	}
}

func appendCapped(dst, src []byte, limit int) []byte {
	if room := limit - len(dst); room < len(src) {
		src = src[:max(room, 0)]
	}
	return append(dst, src...)
}
