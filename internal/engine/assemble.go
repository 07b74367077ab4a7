package engine

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/tanq16/chunkget/internal/utils"
)

// AssembleBlockSize bounds the memory used to copy a chunk into the output.
const AssembleBlockSize = 64 * 1024

// Assemble copies every chunk cache file into dest at the chunk's byte offset
// and sizes dest to exactly total bytes. It is idempotent for the same set of
// complete cache files.
func Assemble(dest string, total int64, chunks []ChunkLocation) error {
	return assemble(dest, total, chunks, AssembleBlockSize)
}

func assemble(dest string, total int64, chunks []ChunkLocation, blockSize int) error {
	log := utils.GetLogger("assembler")
	ordered := make([]ChunkLocation, len(chunks))
	copy(ordered, chunks)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Index < ordered[j].Index
	})

	destFile, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("%w: open output file: %w", ErrAssemble, err)
	}
	defer destFile.Close()

	buffer := make([]byte, blockSize)
	for _, chunk := range ordered {
		if _, err := destFile.Seek(chunk.Start, io.SeekStart); err != nil {
			return fmt.Errorf("%w: seek output to chunk %d: %w", ErrAssemble, chunk.Index, err)
		}
		if err := copyChunk(destFile, chunk, buffer); err != nil {
			return err
		}
		if err := destFile.Sync(); err != nil {
			return fmt.Errorf("%w: sync output after chunk %d: %w", ErrAssemble, chunk.Index, err)
		}
		log.Debug().Int("chunk", chunk.Index).Int64("start", chunk.Start).Int64("size", chunk.Length()).Msg("Chunk assembled")
	}
	if err := destFile.Truncate(total); err != nil {
		return fmt.Errorf("%w: size output file: %w", ErrAssemble, err)
	}
	log.Debug().Int64("totalBytes", total).Str("outputFile", dest).Msg("File assembly completed")
	return nil
}

// copyChunk copies exactly chunk.Length() bytes from the cache file in blocks
// of len(buffer); the last block is an exact read of the remainder.
func copyChunk(w io.Writer, chunk ChunkLocation, buffer []byte) error {
	if chunk.Length() == 0 {
		return nil
	}
	src, err := os.Open(chunk.Path)
	if err != nil {
		return fmt.Errorf("%w: open cache file of chunk %d: %w", ErrAssemble, chunk.Index, err)
	}
	defer src.Close()

	remaining := chunk.Length()
	for remaining > 0 {
		block := buffer
		if int64(len(block)) > remaining {
			block = block[:remaining]
		}
		if _, err := io.ReadFull(src, block); err != nil {
			return fmt.Errorf("%w: short read of chunk %d: %w", ErrAssemble, chunk.Index, err)
		}
		if _, err := w.Write(block); err != nil {
			return fmt.Errorf("%w: write chunk %d: %w", ErrAssemble, chunk.Index, err)
		}
		remaining -= int64(len(block))
	}
	return nil
}
