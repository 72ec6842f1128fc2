package codec2

// Bitstream sniffing for streams that arrive without container
// metadata. Owners use the detected MIME type to pick a component from
// a Registry before InitiateAllocate.

// DetectMime inspects the first buffer of a raw bitstream and returns
// the MIME type of the codec it carries. Video formats are tried first.
func DetectMime(data []byte) (string, bool) {
	if mime, ok := DetectVideoMime(data); ok {
		return mime, true
	}
	return DetectAudioMime(data)
}

// DetectVideoMime recognizes H.264 (Annex-B and AVCC framing), VP8,
// VP9, AV1 and IVF-wrapped streams.
func DetectVideoMime(data []byte) (string, bool) {
	if len(data) < 4 {
		return "", false
	}

	if isAnnexBStartCode(data) && isH264NALType(nalType(data)) {
		return MimeVideoH264, true
	}

	// AVCC framing replaces start codes with big-endian NAL lengths.
	if isAVCCFormat(data) {
		return MimeVideoH264, true
	}

	// IVF file header: "DKIF" magic, FourCC at offset 8.
	if len(data) >= 32 && string(data[0:4]) == "DKIF" {
		switch string(data[8:12]) {
		case "VP80":
			return MimeVideoVP8, true
		case "VP90":
			return MimeVideoVP9, true
		case "AV01":
			return MimeVideoAV1, true
		}
	}

	if isVP8Keyframe(data) {
		return MimeVideoVP8, true
	}
	if isVP9Frame(data) {
		return MimeVideoVP9, true
	}
	if isAV1OBU(data) {
		return MimeVideoAV1, true
	}
	return "", false
}

// DetectAudioMime recognizes Ogg-encapsulated Opus and ADTS-framed AAC.
// Codecs whose frames carry no self-describing header, raw Opus
// included, cannot be sniffed.
func DetectAudioMime(data []byte) (string, bool) {
	if len(data) < 4 {
		return "", false
	}

	// RFC 3533: Ogg pages open with the "OggS" capture pattern; an Opus
	// stream puts "OpusHead" in the first page payload.
	if string(data[0:4]) == "OggS" {
		if len(data) >= 36 && string(data[28:36]) == "OpusHead" {
			return MimeAudioOpus, true
		}
		return "", false
	}

	if isADTSFrame(data) {
		return MimeAudioAAC, true
	}
	return "", false
}

// isAnnexBStartCode reports whether data opens with an ITU-T H.264
// Annex B start code, either the 4-byte 0x00000001 or the 3-byte
// 0x000001 form.
func isAnnexBStartCode(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	if data[0] == 0 && data[1] == 0 && data[2] == 0 && data[3] == 1 {
		return true
	}
	return data[0] == 0 && data[1] == 0 && data[2] == 1
}

// nalType extracts the nal_unit_type following an Annex B start code.
func nalType(data []byte) byte {
	offset := 3
	if data[2] == 0 {
		offset = 4
	}
	if len(data) <= offset {
		return 0
	}
	return data[offset] & 0x1F
}

// isH264NALType reports whether t is a NAL unit type ITU-T H.264
// Table 7-1 defines: 1-12 plus the 19-21 extension range.
func isH264NALType(t byte) bool {
	return (t >= 1 && t <= 12) || (t >= 19 && t <= 21)
}

// isAVCCFormat reports whether data looks length-prefixed per
// ISO/IEC 14496-15: a plausible big-endian NAL length in the first four
// bytes.
func isAVCCFormat(data []byte) bool {
	if len(data) < 8 {
		return false
	}
	length := int(data[0])<<24 | int(data[1])<<16 | int(data[2])<<8 | int(data[3])
	return length > 0 && length < len(data) && length < 10*1024*1024
}

// isVP8Keyframe reports whether data opens with a VP8 key frame. Per
// RFC 6386 section 9.1 the frame tag's low bit is 0 for key frames and
// bytes 3-5 hold the 0x9D012A start code.
func isVP8Keyframe(data []byte) bool {
	if len(data) < 6 {
		return false
	}
	if data[0]&0x01 != 0 {
		return false
	}
	return data[3] == 0x9D && data[4] == 0x01 && data[5] == 0x2A
}

// isVP9Frame reports whether data opens with the VP9 frame_marker, the
// 0b10 pattern in the top two bits of the uncompressed header.
func isVP9Frame(data []byte) bool {
	return len(data) >= 3 && (data[0]>>6)&0x03 == 0x02
}

// isAV1OBU reports whether data opens with a valid AV1 OBU header:
// forbidden bit clear and obu_type in the defined 1-8 or 15 range.
func isAV1OBU(data []byte) bool {
	if len(data) < 2 {
		return false
	}
	if (data[0]>>7)&0x01 != 0 {
		return false
	}
	t := (data[0] >> 3) & 0x0F
	return (t >= 1 && t <= 8) || t == 15
}

// isADTSFrame reports whether data opens with an AAC ADTS header: the
// 12-bit 0xFFF syncword with the layer field zeroed.
func isADTSFrame(data []byte) bool {
	if len(data) < 7 {
		return false
	}
	if data[0] != 0xFF || data[1]&0xF0 != 0xF0 {
		return false
	}
	return (data[1]>>1)&0x03 == 0
}
