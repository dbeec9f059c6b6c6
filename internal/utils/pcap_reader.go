package utils

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// RTP载荷类型（RFC 3551）
const (
	PayloadTypePCMU = 0
	PayloadTypePCMA = 8
)

// G.711 采样率
const g711SampleRate = 8000

// ErrNoRTPAudio 抓包中没有可解码的G.711 RTP流
var ErrNoRTPAudio = errors.New("抓包中没有找到G.711 RTP音频")

// IsCaptureFile 根据扩展名判断是否为抓包文件
func IsCaptureFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pcap", ".pcapng", ".cap":
		return true
	}
	return false
}

// RTPPacket 解析后的RTP包
type RTPPacket struct {
	PayloadType uint8
	Sequence    uint16
	Timestamp   uint32
	SSRC        uint32
	Payload     []byte
}

// PCAPReader 用于读取和解析PCAP/PCAPNG文件
type PCAPReader struct {
	source gopacket.PacketDataSource
	link   layers.LinkType
}

// NewPCAPReader 创建新的PCAP读取器，自动识别pcap与pcapng格式
func NewPCAPReader(r io.Reader) (*PCAPReader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("读取抓包文件头失败: %w", err)
	}

	// pcapng 以 Section Header Block 开头
	if binary.BigEndian.Uint32(magic) == 0x0A0D0D0A {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, fmt.Errorf("打开PCAPNG文件失败: %w", err)
		}
		return &PCAPReader{source: ng, link: ng.LinkType()}, nil
	}

	reader, err := pcapgo.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("打开PCAP文件失败: %w", err)
	}
	return &PCAPReader{source: reader, link: reader.LinkType()}, nil
}

// ReadRTPPackets 读取所有UDP负载中的RTP包，保持抓包顺序
func (r *PCAPReader) ReadRTPPackets() ([]RTPPacket, error) {
	packetSource := gopacket.NewPacketSource(r.source, r.link)
	packetSource.DecodeOptions = gopacket.DecodeOptions{Lazy: true}

	var packets []RTPPacket
	for {
		packet, err := packetSource.NextPacket()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("读取数据包失败: %w", err)
		}

		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok {
			continue
		}
		if rtp, ok := ParseRTP(udp.Payload); ok {
			packets = append(packets, rtp)
		}
	}
	return packets, nil
}

// ParseRTP 解析RTP头部（RFC 3550），去掉CSRC、扩展头和填充
func ParseRTP(b []byte) (RTPPacket, bool) {
	if len(b) < 12 || b[0]>>6 != 2 {
		return RTPPacket{}, false
	}

	csrcCount := int(b[0] & 0x0f)
	hasExtension := b[0]&0x10 != 0
	hasPadding := b[0]&0x20 != 0

	offset := 12 + 4*csrcCount
	if hasExtension {
		if len(b) < offset+4 {
			return RTPPacket{}, false
		}
		offset += 4 + int(binary.BigEndian.Uint16(b[offset+2:offset+4]))*4
	}

	end := len(b)
	if hasPadding {
		end -= int(b[end-1])
	}
	if offset > end {
		return RTPPacket{}, false
	}

	return RTPPacket{
		PayloadType: b[1] & 0x7f,
		Sequence:    binary.BigEndian.Uint16(b[2:4]),
		Timestamp:   binary.BigEndian.Uint32(b[4:8]),
		SSRC:        binary.BigEndian.Uint32(b[8:12]),
		Payload:     b[offset:end],
	}, true
}

// ExtractWAV 从抓包中提取第一条G.711 RTP流并转换为16位PCM WAV
func ExtractWAV(r io.Reader) ([]byte, error) {
	reader, err := NewPCAPReader(r)
	if err != nil {
		return nil, err
	}
	packets, err := reader.ReadRTPPackets()
	if err != nil {
		return nil, err
	}

	var (
		ssrc    uint32
		found   bool
		samples []int16
	)
	for _, p := range packets {
		if p.PayloadType != PayloadTypePCMU && p.PayloadType != PayloadTypePCMA {
			continue
		}
		if !found {
			ssrc, found = p.SSRC, true
		}
		if p.SSRC != ssrc {
			continue
		}
		for _, b := range p.Payload {
			if p.PayloadType == PayloadTypePCMU {
				samples = append(samples, ulawToLinear(b))
			} else {
				samples = append(samples, alawToLinear(b))
			}
		}
	}
	if len(samples) == 0 {
		return nil, ErrNoRTPAudio
	}

	return encodeWAV(samples, g711SampleRate), nil
}

// ulawToLinear G.711 μ-law 解码
func ulawToLinear(u byte) int16 {
	u = ^u
	t := (int(u&0x0f) << 3) + 0x84
	t <<= (u & 0x70) >> 4
	if u&0x80 != 0 {
		return int16(0x84 - t)
	}
	return int16(t - 0x84)
}

// alawToLinear G.711 A-law 解码
func alawToLinear(a byte) int16 {
	a ^= 0x55
	t := int(a&0x0f) << 4
	seg := (a & 0x70) >> 4
	switch seg {
	case 0:
		t += 8
	case 1:
		t += 0x108
	default:
		t += 0x108
		t <<= seg - 1
	}
	if a&0x80 != 0 {
		return int16(t)
	}
	return int16(-t)
}

// encodeWAV 生成单声道16位PCM WAV
func encodeWAV(samples []int16, sampleRate uint32) []byte {
	dataSize := uint32(len(samples) * 2)

	var buf bytes.Buffer
	buf.Grow(44 + int(dataSize))
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, 36+dataSize)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))         // fmt块大小
	binary.Write(&buf, binary.LittleEndian, uint16(1))          // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1))          // 单声道
	binary.Write(&buf, binary.LittleEndian, sampleRate)         // 采样率
	binary.Write(&buf, binary.LittleEndian, sampleRate*2)       // 字节率
	binary.Write(&buf, binary.LittleEndian, uint16(2))          // 块对齐
	binary.Write(&buf, binary.LittleEndian, uint16(16))         // 位深
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataSize)
	binary.Write(&buf, binary.LittleEndian, samples)
	return buf.Bytes()
}
