package results

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/pierrec/lz4/v4"
)

// ArchiveVersion is bumped on incompatible changes to the archive layout.
const ArchiveVersion = 1

var ErrArchiveVersion = errors.New("results: unsupported archive version")

type archiveGroup struct {
	Kind Kind `cbor:"1,keyasint"`
	Size int  `cbor:"2,keyasint"`
	Lost int  `cbor:"3,keyasint,omitempty"`
}

// archive layout (CBOR, integer keys), LZ4 frame compressed:
//
//	1: version
//	2: groups in first-insertion order, with lost counts
//	3: measurements in insertion order
type archive struct {
	Version      int            `cbor:"1,keyasint"`
	Groups       []archiveGroup `cbor:"2,keyasint"`
	Measurements []Measurement  `cbor:"3,keyasint"`
}

// WriteArchive stores every raw sample of s so a run can be re-analysed
// offline.
func WriteArchive(w io.Writer, s *SampleSet) error {
	a := archive{
		Version:      ArchiveVersion,
		Groups:       make([]archiveGroup, 0, len(s.order)),
		Measurements: s.measurements,
	}
	for _, k := range s.order {
		a.Groups = append(a.Groups, archiveGroup{Kind: k.Kind, Size: k.Size, Lost: s.groups[k].lost})
	}

	data, err := cbor.Marshal(a)
	if err != nil {
		return fmt.Errorf("results: encode archive: %w", err)
	}

	zw := lz4.NewWriter(w)
	if err := zw.Apply(lz4.CompressionLevelOption(lz4.Fast)); err != nil {
		return err
	}
	if _, err := zw.Write(data); err != nil {
		return fmt.Errorf("results: compress archive: %w", err)
	}
	return zw.Close()
}

// ReadArchive rebuilds a SampleSet written by WriteArchive.
func ReadArchive(r io.Reader) (*SampleSet, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, lz4.NewReader(r)); err != nil {
		return nil, fmt.Errorf("results: decompress archive: %w", err)
	}

	var a archive
	if err := cbor.Unmarshal(buf.Bytes(), &a); err != nil {
		return nil, fmt.Errorf("results: decode archive: %w", err)
	}
	if a.Version != ArchiveVersion {
		return nil, fmt.Errorf("%w: %d", ErrArchiveVersion, a.Version)
	}

	s := NewSampleSet()
	for _, g := range a.Groups {
		s.group(Key{Kind: g.Kind, Size: g.Size}).lost = g.Lost
	}
	for _, m := range a.Measurements {
		s.Add(m)
	}
	return s, nil
}
