package transport

import (
	"fmt"
)

// ringGeometry sizes a TPACKET_V3 ring for frames of at most snapLen bytes
// within a budget of bufferSize bytes.
//
// AF_PACKET PACKET_MMAP requires:
// 1. blockSize must be a multiple of pageSize
// 2. blockSize must be a multiple of frameSize
// 3. blockSize * numBlocks should approximate bufferSize
func ringGeometry(bufferSize, snapLen, pageSize int) (frameSize, blockSize, numBlocks int, err error) {
	const tpacketHdrLen = 52 // TPACKET3_HDRLEN (approximate)
	const minFramesPerBlock = 8

	if bufferSize <= 0 {
		return 0, 0, 0, fmt.Errorf("bufferSize must be positive, got %d", bufferSize)
	}
	if snapLen <= 0 {
		return 0, 0, 0, fmt.Errorf("snapLen must be positive, got %d", snapLen)
	}
	if pageSize <= 0 || pageSize&(pageSize-1) != 0 {
		return 0, 0, 0, fmt.Errorf("pageSize must be a positive power of two, got %d", pageSize)
	}

	// Power of two frames divide evenly into power of two pages.
	frameSize = 16
	for frameSize < tpacketHdrLen+snapLen {
		frameSize <<= 1
	}

	blockSize = lcm(pageSize, frameSize)
	for blockSize < minFramesPerBlock*frameSize {
		blockSize <<= 1
	}

	numBlocks = bufferSize / blockSize
	if numBlocks < 1 {
		numBlocks = 1
	}
	return frameSize, blockSize, numBlocks, nil
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return (a * b) / gcd(a, b)
}
