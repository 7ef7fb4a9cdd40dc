package playerstate

import (
	"fmt"
	"math"

	"faceplate/internal/logging"
)

type rule func(e *Engine, field Field, value any)

// fieldRules is the per-field processing table. Fields without an entry are
// stored but never emitted.
var fieldRules = map[Field]rule{
	FieldTitle:          (*Engine).applyTrack,
	FieldArtist:         (*Engine).applyTrack,
	FieldAlbum:          (*Engine).applyTrack,
	FieldStatus:         (*Engine).applyStatus,
	FieldSeek:           (*Engine).applySeek,
	FieldDuration:       (*Engine).applySeek,
	FieldVolume:         (*Engine).applyVolume,
	FieldBitRate:        lineRule(EventBitRateChange, LineBitRate, "Bit Rate"),
	FieldSampleRate:     lineRule(EventSampleRateChange, LineSampleRate, "Sample Rate"),
	FieldBitDepth:       lineRule(EventSampleDepthChange, LineSampleDepth, "Sample Depth"),
	FieldChannels:       lineRule(EventChannelsChange, LineChannels, "Channels"),
	FieldRepeat:         lineRule(EventRepeatChange, LineRepeat, "Repeat"),
	FieldRepeatSingle:   lineRule(EventRepeatChange, LineRepeat, "Repeat"),
	FieldAlbumArt:       (*Engine).applyCover,
	FieldURI:            (*Engine).applyURI,
	FieldTrackType:      (*Engine).applyTrackType,
	FieldPosition:       (*Engine).applyPosition,
	FieldPlaylistLength: (*Engine).applyPlaylistLength,
}

func (e *Engine) dispatch(field Field, value any) {
	if r, ok := fieldRules[field]; ok {
		r(e, field, value)
	}
}

// lineRule emits the typed event with the raw value followed by a labeled
// display line.
func lineRule(name EventName, line int, label string) rule {
	return func(e *Engine, _ Field, value any) {
		e.emit(name, value)
		e.emitLine(line, label, stringify(value))
	}
}

func (e *Engine) emitLine(line int, label, text string) {
	e.emit(LineEvent(line), label+" : "+text)
}

func (e *Engine) applyTrack(Field, any) {
	line := ComposeTrack(e.state[string(FieldTitle)], e.state[string(FieldArtist)], e.state[string(FieldAlbum)])
	if line != e.trackLine {
		e.trackLine = line
		e.progress.Reset()
		e.logger.Info("track changed", logging.String("track", line))
		e.emit(EventTrackChange, line)
	}
	if e.playState == "play" {
		e.activity()
	}
}

func (e *Engine) applyStatus(_ Field, value any) {
	status := stringify(value)
	if status == e.playState {
		return
	}
	e.logger.Debug("playback state changed",
		logging.String("from", e.playState),
		logging.String("to", status),
	)
	e.playState = status
	e.activity()
	e.emit(EventStateChange, status)
}

// applySeek throttles seek and duration updates. Suppressed updates are already
// in state; a settle task flushes the latest value once updates go quiet.
func (e *Engine) applySeek(Field, any) {
	now := e.clock.Now()
	if !e.lastSeekEmit.IsZero() && now.Sub(e.lastSeekEmit) < e.seekThrottle {
		e.settle.cancel()
		e.settle = e.schedule(e.seekSettle, e.flushSeek)
		return
	}
	e.flushSeek()
}

func (e *Engine) flushSeek() {
	e.settle.cancel()
	e.activity()
	info := FormatSeek(e.state[string(FieldSeek)], e.state[string(FieldDuration)])
	if info.Display == e.seekLine {
		return
	}
	e.seekLine = info.Display
	e.lastSeekEmit = e.clock.Now()
	if e.progress.ShouldLog(info.Ratio*100, e.trackLine) {
		e.logger.Debug("seek progress",
			logging.String("position", info.Display),
			logging.Float64("ratio", math.Round(info.Ratio*1000)/1000),
		)
	}
	e.emit(EventSeekChange, info)
}

func (e *Engine) applyVolume(_ Field, value any) {
	e.activity()
	e.emit(EventVolumeChange, value)
}

func (e *Engine) applyCover(_ Field, value any) {
	path := stringify(value)
	if path == coverSentinel {
		url := joinHost(e.host, path)
		e.cover.cancel()
		e.cover = e.schedule(e.coverGrace, func() { e.emitCover(url) })
		return
	}
	if isRemoteURL(path) {
		e.emitCover(path)
		return
	}
	e.emitCover(joinHost(e.host, path))
}

// emitCover publishes a cover URL. Any cover emission supersedes a pending
// sentinel.
func (e *Engine) emitCover(url string) {
	e.cover.cancel()
	e.emit(EventCoverChange, url)
}

func (e *Engine) applyURI(_ Field, value any) {
	e.emit(EventFile, value)
}

func (e *Engine) applyTrackType(_ Field, value any) {
	encoding := cleanTrackType(value)
	e.emit(EventEncodingChange, encoding)
	e.emitLine(LineTrackType, "Track Type", encoding)
}

func (e *Engine) applyPosition(_ Field, value any) {
	position := playlistPosition(value)
	e.emit(EventSongIDChange, position)
	e.emitPlaylistLine(position)
}

func (e *Engine) applyPlaylistLength(Field, any) {
	value, ok := e.state[string(FieldPosition)]
	if !ok {
		return
	}
	e.emitPlaylistLine(playlistPosition(value))
}

func (e *Engine) emitPlaylistLine(position int) {
	total := "1"
	if length := e.state[string(FieldPlaylistLength)]; truthy(length) {
		total = stringify(length)
	}
	e.emitLine(LinePlaylist, "Playlist", fmt.Sprintf("%d / %s", position, total))
}

// playlistPosition converts a zero-based index to the 1-based display value.
func playlistPosition(value any) int {
	index, ok := parseLeadingInt(value)
	if !ok {
		index = 0
	}
	return index + 1
}
