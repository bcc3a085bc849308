package capture

import "encoding/binary"

const WAVContentType = "audio/wav"

// appendWAV appends a self-contained 16-bit PCM WAV file holding pcm.
func appendWAV(dst, pcm []byte, sampleRate, channels int) []byte {
	const bits = 16
	blockAlign := channels * bits / 8

	dst = append(dst, "RIFF"...)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(36+len(pcm)))
	dst = append(dst, "WAVEfmt "...)
	dst = binary.LittleEndian.AppendUint32(dst, 16)
	dst = binary.LittleEndian.AppendUint16(dst, 1)
	dst = binary.LittleEndian.AppendUint16(dst, uint16(channels))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(sampleRate))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(sampleRate*blockAlign))
	dst = binary.LittleEndian.AppendUint16(dst, uint16(blockAlign))
	dst = binary.LittleEndian.AppendUint16(dst, bits)
	dst = append(dst, "data"...)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(pcm)))
	return append(dst, pcm...)
}
