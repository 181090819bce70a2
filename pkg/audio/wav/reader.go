// Package wav reads and writes 16-bit PCM WAV data.
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// Header represents a WAV file header
type Header struct {
	ChunkSize     uint32
	SampleRate    uint32
	NumChannels   uint16
	BitsPerSample uint16
	DataSize      uint32
}

// BytesPer returns the number of PCM bytes covering d.
func (h Header) BytesPer(d time.Duration) int {
	samples := int(int64(h.SampleRate) * int64(d) / int64(time.Second))
	return samples * int(h.NumChannels) * int(h.BitsPerSample/8)
}

// Reader reads PCM data out of a WAV stream.
type Reader struct {
	src    io.ReadSeeker
	closer io.Closer
	header Header
}

// Open opens a WAV file for reading.
func Open(filename string) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAV file: %w", err)
	}

	r, err := NewReader(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	r.closer = file
	return r, nil
}

// NewReader parses the header of src and positions it at the audio data.
func NewReader(src io.ReadSeeker) (*Reader, error) {
	r := &Reader{src: src}
	if err := r.readHeader(); err != nil {
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}
	return r, nil
}

// Header returns the WAV file header information
func (r *Reader) Header() Header {
	return r.header
}

// ReadChunks reads the remaining audio and splits it into chunks of the
// given duration. The last chunk is zero padded.
func (r *Reader) ReadChunks(d time.Duration) ([][]byte, error) {
	size := r.header.BytesPer(d)
	if size <= 0 {
		return nil, fmt.Errorf("chunk duration %s too small", d)
	}

	var chunks [][]byte
	for {
		buf := make([]byte, size)
		n, err := io.ReadFull(r.src, buf)
		if n > 0 {
			chunks = append(chunks, buf)
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return chunks, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read audio data: %w", err)
		}
	}
}

// Close closes the underlying file when the reader owns one.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// readHeader reads and validates the WAV file header
func (r *Reader) readHeader() error {
	var riffHeader [12]byte
	if _, err := io.ReadFull(r.src, riffHeader[:]); err != nil {
		return fmt.Errorf("failed to read RIFF header: %w", err)
	}
	if string(riffHeader[0:4]) != "RIFF" {
		return fmt.Errorf("not a valid RIFF file")
	}
	if string(riffHeader[8:12]) != "WAVE" {
		return fmt.Errorf("not a valid WAVE file")
	}
	r.header.ChunkSize = binary.LittleEndian.Uint32(riffHeader[4:8])

	if err := r.readFmtChunk(); err != nil {
		return err
	}
	if err := r.readDataChunk(); err != nil {
		return err
	}

	if r.header.BitsPerSample != 16 {
		return fmt.Errorf("only 16-bit samples are supported, got %d-bit", r.header.BitsPerSample)
	}
	if r.header.NumChannels != 1 && r.header.NumChannels != 2 {
		return fmt.Errorf("only mono and stereo are supported, got %d channels", r.header.NumChannels)
	}
	return nil
}

func (r *Reader) nextChunk() (string, uint32, error) {
	var chunkHeader [8]byte
	if _, err := io.ReadFull(r.src, chunkHeader[:]); err != nil {
		return "", 0, fmt.Errorf("failed to read chunk header: %w", err)
	}
	return string(chunkHeader[0:4]), binary.LittleEndian.Uint32(chunkHeader[4:8]), nil
}

func (r *Reader) skip(n uint32) error {
	if _, err := r.src.Seek(int64(n), io.SeekCurrent); err != nil {
		return fmt.Errorf("failed to skip chunk: %w", err)
	}
	return nil
}

func (r *Reader) readFmtChunk() error {
	for {
		chunkID, chunkSize, err := r.nextChunk()
		if err != nil {
			return err
		}
		if chunkID != "fmt " {
			if err := r.skip(chunkSize); err != nil {
				return err
			}
			continue
		}
		if chunkSize < 16 {
			return fmt.Errorf("fmt chunk too small: %d bytes", chunkSize)
		}

		var fmtData [16]byte
		if _, err := io.ReadFull(r.src, fmtData[:]); err != nil {
			return fmt.Errorf("failed to read fmt data: %w", err)
		}
		if audioFormat := binary.LittleEndian.Uint16(fmtData[0:2]); audioFormat != 1 {
			return fmt.Errorf("only PCM format is supported, got format %d", audioFormat)
		}
		r.header.NumChannels = binary.LittleEndian.Uint16(fmtData[2:4])
		r.header.SampleRate = binary.LittleEndian.Uint32(fmtData[4:8])
		r.header.BitsPerSample = binary.LittleEndian.Uint16(fmtData[14:16])

		if chunkSize > 16 {
			return r.skip(chunkSize - 16)
		}
		return nil
	}
}

// readDataChunk positions the reader at the start of audio data.
func (r *Reader) readDataChunk() error {
	for {
		chunkID, chunkSize, err := r.nextChunk()
		if err != nil {
			return err
		}
		if chunkID == "data" {
			r.header.DataSize = chunkSize
			return nil
		}
		if err := r.skip(chunkSize); err != nil {
			return err
		}
	}
}
