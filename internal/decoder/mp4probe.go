package decoder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"
)

var errNoVideoTrack = errors.New("no video track found")

// IsMP4Path reports whether ProbeMP4 should be tried for path.
func IsMP4Path(path string) bool {
	switch extension(path) {
	case ".mp4", ".m4v", ".mov":
		return true
	}
	return false
}

// ProbeMP4 reads container metadata without decoding any samples.
func ProbeMP4(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, newError(KindIOFailure, path, -1, err)
	}
	defer f.Close()

	info, err := probeMP4Reader(f)
	if err != nil {
		if errors.Is(err, errNoVideoTrack) {
			return Info{}, newError(KindUnsupportedFormat, path, -1, err)
		}
		return Info{}, newError(KindUnsupportedFormat, path, -1, fmt.Errorf("decode mp4: %w", err))
	}
	info.Path = path
	return info, nil
}

func probeMP4Reader(r io.ReadSeeker) (Info, error) {
	file, err := mp4.DecodeFile(r)
	if err != nil {
		return Info{}, err
	}

	if file.IsFragmented() && file.Init != nil && file.Init.Moov != nil {
		trak := videoTrak(file.Init.Moov)
		if trak == nil {
			return Info{}, errNoVideoTrack
		}
		info := trackInfo(trak)
		if err := fragmentTiming(file, trak, &info); err != nil {
			return Info{}, err
		}
		return info, nil
	}

	if file.Moov == nil {
		return Info{}, errNoVideoTrack
	}
	trak := videoTrak(file.Moov)
	if trak == nil {
		return Info{}, errNoVideoTrack
	}
	info := trackInfo(trak)
	progressiveTiming(trak, &info)
	return info, nil
}

func videoTrak(moov *mp4.MoovBox) *mp4.TrakBox {
	for _, trak := range moov.Traks {
		if trak.Mdia != nil && trak.Mdia.Hdlr != nil && trak.Mdia.Hdlr.HandlerType == "vide" {
			return trak
		}
	}
	return nil
}

func trackInfo(trak *mp4.TrakBox) Info {
	info := Info{Container: "mp4", Codec: "unknown"}

	if trak.Tkhd != nil {
		info.Width = int(uint32(trak.Tkhd.Width) >> 16)
		info.Height = int(uint32(trak.Tkhd.Height) >> 16)
	}

	if trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil || trak.Mdia.Minf.Stbl.Stsd == nil {
		return info
	}
	for _, child := range trak.Mdia.Minf.Stbl.Stsd.Children {
		info.Codec = codecName(child.Type())
		if vse, ok := child.(*mp4.VisualSampleEntryBox); ok && vse.Width > 0 && vse.Height > 0 {
			info.Width = int(vse.Width)
			info.Height = int(vse.Height)
		}
		break
	}
	return info
}

func codecName(sampleEntry string) string {
	switch sampleEntry {
	case "avc1", "avc3":
		return "h264"
	case "hvc1", "hev1":
		return "hevc"
	case "av01":
		return "av1"
	case "vp09":
		return "vp9"
	case "mp4v":
		return "mpeg4"
	default:
		return sampleEntry
	}
}

func timescaleOf(trak *mp4.TrakBox) uint32 {
	if trak.Mdia != nil && trak.Mdia.Mdhd != nil && trak.Mdia.Mdhd.Timescale > 0 {
		return trak.Mdia.Mdhd.Timescale
	}
	return 1000
}

func progressiveTiming(trak *mp4.TrakBox, info *Info) {
	stbl := trak.Mdia.Minf.Stbl
	if stbl == nil || stbl.Stsz == nil {
		return
	}
	timescale := timescaleOf(trak)
	count := stbl.Stsz.SampleNumber
	info.FrameCount = int64(count)

	if stbl.Stts == nil || count == 0 {
		return
	}
	start, firstDur := stbl.Stts.GetDecodeTime(1)
	last, lastDur := stbl.Stts.GetDecodeTime(count)
	if firstDur > 0 {
		info.NativeRate = float64(timescale) / float64(firstDur)
	}
	info.StartTime = ticks(start, timescale)
	info.Duration = ticks(last+uint64(lastDur)-start, timescale)
}

func fragmentTiming(file *mp4.File, trak *mp4.TrakBox, info *Info) error {
	timescale := timescaleOf(trak)
	trackID := trak.Tkhd.TrackID

	var trex *mp4.TrexBox
	if file.Init.Moov.Mvex != nil {
		for _, t := range file.Init.Moov.Mvex.Trexs {
			if t.TrackID == trackID {
				trex = t
				break
			}
		}
	}

	var (
		count      int64
		first, end uint64
		firstDur   uint32
	)
	for _, seg := range file.Segments {
		for _, frag := range seg.Fragments {
			if frag.Moof == nil {
				continue
			}
			samples, err := frag.GetFullSamples(trex)
			if err != nil {
				return fmt.Errorf("get samples: %w", err)
			}
			for _, s := range samples {
				if count == 0 {
					first, firstDur = s.DecodeTime, s.Dur
				}
				end = s.DecodeTime + uint64(s.Dur)
				count++
			}
		}
	}

	info.FrameCount = count
	if firstDur > 0 {
		info.NativeRate = float64(timescale) / float64(firstDur)
	}
	info.StartTime = ticks(first, timescale)
	if count > 0 {
		info.Duration = ticks(end-first, timescale)
	}
	return nil
}

func ticks(v uint64, timescale uint32) time.Duration {
	return time.Duration(float64(v) / float64(timescale) * float64(time.Second))
}
