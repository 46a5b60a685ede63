package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrStoreClosed is returned by every operation after Close
var ErrStoreClosed = errors.New("alert store is closed")

const (
	segmentPrefix = "suspicious_domains_"
	segmentLayout = "02-01-2006_15-04-05"
)

// segmentNamespace derives stable segment IDs from segment names
var segmentNamespace = uuid.MustParse("8f0c5a3e-3b8e-4d53-9a51-0e7a1f3c2b64")

// segmentName builds the report name for a rotation at t.
// taken reports names already in use; a numeric suffix is added until one is free.
func segmentName(t time.Time, taken func(string) (bool, error)) (string, error) {
	base := segmentPrefix + t.Format(segmentLayout)
	name := base
	for i := 1; ; i++ {
		used, err := taken(name)
		if err != nil {
			return "", err
		}
		if !used {
			return name, nil
		}
		name = fmt.Sprintf("%s_%d", base, i)
	}
}

// segmentTime recovers the rotation time encoded in a segment name
func segmentTime(name string, loc *time.Location) (time.Time, bool) {
	stamp := strings.TrimPrefix(name, segmentPrefix)
	if len(stamp) < len(segmentLayout) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(segmentLayout, stamp[:len(segmentLayout)], loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func segmentID(name string) uuid.UUID {
	return uuid.NewSHA1(segmentNamespace, []byte(name))
}

// validRecord rejects values that would corrupt a line-oriented segment
func validRecord(name string) error {
	if name == "" {
		return errors.New("empty domain")
	}
	if strings.ContainsAny(name, "\r\n") {
		return fmt.Errorf("domain %q contains a line break", name)
	}
	return nil
}
