package extsort

import (
	"bufio"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/s2"

	"github.com/grf/partitioner/internal/domain/partition"
)

// writeRun stores records as a gob stream inside an s2 frame
func writeRun(path string, records []partition.InventoryRecord) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create run file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close run file: %w", cerr)
		}
	}()

	zw := s2.NewWriter(file)
	enc := gob.NewEncoder(zw)
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			return fmt.Errorf("failed to encode record %s: %w", records[i].ArchiveID, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to flush run file: %w", err)
	}
	return nil
}

type runReader struct {
	file *os.File
	dec  *gob.Decoder
}

func openRun(path string) (*runReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run file: %w", err)
	}
	return &runReader{
		file: file,
		dec:  gob.NewDecoder(s2.NewReader(bufio.NewReader(file))),
	}, nil
}

// Next returns the next record; ok is false at the end of the run
func (r *runReader) Next() (rec partition.InventoryRecord, ok bool, err error) {
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return partition.InventoryRecord{}, false, nil
		}
		return partition.InventoryRecord{}, false, fmt.Errorf("failed to decode run record: %w", err)
	}
	return rec, true, nil
}

func (r *runReader) Close() error {
	return r.file.Close()
}
