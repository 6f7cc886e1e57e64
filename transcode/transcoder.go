package transcode

// FFmpeg bundles the decoder, the encoder and the native WAV extraction
// behind the single transcoding surface the conversion pipeline consumes.
type FFmpeg struct {
	decoder *Decoder
	encoder *Encoder
}

// NewFFmpeg creates a transcoder backed by the ffmpeg and ffprobe binaries
func NewFFmpeg(decoderConfig *DecoderConfig, encoderConfig *EncoderConfig) *FFmpeg {
	return &FFmpeg{
		decoder: NewDecoder(decoderConfig),
		encoder: NewEncoder(encoderConfig),
	}
}

// Decode decodes an audio file and returns PCM data
func (f *FFmpeg) Decode(path string) (*AudioData, error) {
	return f.decoder.DecodeFile(path)
}

// EncodeWAV writes audio to path as the lossless WAV intermediate
func (f *FFmpeg) EncodeWAV(audio *AudioData, path string) error {
	return f.encoder.EncodeWAV(audio, path)
}

// EncodeMP3 writes audio to path as the CBR MP3 playback file
func (f *FFmpeg) EncodeMP3(audio *AudioData, path string) error {
	return f.encoder.EncodeMP3(audio, path)
}

// ExtractSamples reads mono samples and the sample rate from a WAV file
func (f *FFmpeg) ExtractSamples(wavPath string) ([]float64, int, error) {
	return ExtractSamples(wavPath)
}

// CheckAvailability verifies the ffmpeg and ffprobe binaries are reachable
func (f *FFmpeg) CheckAvailability() error {
	return f.decoder.CheckAvailability()
}
