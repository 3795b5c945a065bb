package audio

// Windows cuts the first n windows of windowBytes each from the head of
// buf, in capture order. Bytes past n*windowBytes are ignored. Returned
// slices alias buf. Returns nil when buf holds fewer than n*windowBytes
// bytes.
func Windows(buf []byte, n, windowBytes int) [][]byte {
	if n <= 0 || windowBytes <= 0 {
		return nil
	}
	if len(buf) < n*windowBytes {
		return nil
	}
	out := make([][]byte, n)
	for i := range out {
		out[i] = buf[i*windowBytes : (i+1)*windowBytes]
	}
	return out
}
