package audioio

// Resample converts PCM16 between sample rates by linear interpolation,
// which is adequate for speech.
func Resample(samples []int16, fromRate, toRate int) []int16 {
	return resampleLinear(samples, fromRate, toRate)
}

// ResampleFloat is Resample for float samples.
func ResampleFloat(samples []float32, fromRate, toRate int) []float32 {
	return resampleLinear(samples, fromRate, toRate)
}

func resampleLinear[S int16 | float32](in []S, fromRate, toRate int) []S {
	if fromRate == toRate || len(in) == 0 {
		return in
	}

	step := float64(fromRate) / float64(toRate)
	n := int(float64(len(in)) / step)
	out := make([]S, n)
	last := len(in) - 1
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = in[last]
			continue
		}
		a, b := float64(in[j]), float64(in[j+1])
		out[i] = S(a + (pos-float64(j))*(b-a))
	}
	return out
}

// ResampleFrame converts a frame to mono at rate.
func ResampleFrame(f Frame, rate int) Frame {
	f = f.Mono()
	if f.SampleRate == rate {
		return f
	}
	return Frame{
		Samples:    ResampleFloat(f.Samples, f.SampleRate, rate),
		SampleRate: rate,
		Channels:   1,
	}
}

// BytesToSamples converts raw PCM16 little-endian bytes to int16 samples.
func BytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}

// SamplesToBytes converts int16 samples to raw PCM16 little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}
	return data
}
