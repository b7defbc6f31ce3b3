package index

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/clipweave/stitcher/internal/model"
	"github.com/clipweave/stitcher/internal/persistence/sqlite"
)

// LoadFromSQLite opens dbPath read-only and populates idx from the schema
// described in the external interfaces contract:
//
//	word_clips(word, video_id, start_time, duration)
//	transcripts(video_id, entries_json)   -- entries_json: [[word,start,end], ...]
//	video_meta(video_id, title, channel_id, channel_title, published_at)
func LoadFromSQLite(path string) (*Index, error) {
	db, err := sqlite.Open(path, sqlite.Config{MaxOpenConns: 8, BusyTimeout: sqlite.DefaultConfig().BusyTimeout})
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w", path, err)
	}
	defer db.Close()

	idx := New()

	clips, err := loadWordClips(db)
	if err != nil {
		return nil, fmt.Errorf("index: load word_clips: %w", err)
	}
	idx.LoadWordClips(clips)

	transcripts, err := loadTranscripts(db)
	if err != nil {
		return nil, fmt.Errorf("index: load transcripts: %w", err)
	}
	idx.LoadTranscripts(transcripts)

	metas, err := loadVideoMeta(db)
	if err != nil {
		// video_meta is optional; a missing table only disables channel filtering.
		return idx, nil
	}
	idx.LoadVideoMeta(metas)

	return idx, nil
}

func loadWordClips(db *sql.DB) ([]model.WordClip, error) {
	rows, err := db.Query(`SELECT word, video_id, start_time, duration FROM word_clips`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clips []model.WordClip
	for rows.Next() {
		var c model.WordClip
		if err := rows.Scan(&c.Word, &c.VideoID, &c.StartTime, &c.Duration); err != nil {
			return nil, err
		}
		clips = append(clips, c)
	}
	return clips, rows.Err()
}

func loadTranscripts(db *sql.DB) ([]model.Transcript, error) {
	rows, err := db.Query(`SELECT video_id, entries_json FROM transcripts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transcripts []model.Transcript
	for rows.Next() {
		var videoID, entriesJSON string
		if err := rows.Scan(&videoID, &entriesJSON); err != nil {
			return nil, err
		}
		var raw [][3]any
		if err := json.Unmarshal([]byte(entriesJSON), &raw); err != nil {
			return nil, fmt.Errorf("video %s: %w", videoID, err)
		}
		entries := make([]model.TranscriptEntry, 0, len(raw))
		for _, r := range raw {
			word, _ := r[0].(string)
			start, _ := toFloat(r[1])
			end, _ := toFloat(r[2])
			entries = append(entries, model.TranscriptEntry{Word: word, Start: start, End: end})
		}
		transcripts = append(transcripts, model.Transcript{VideoID: videoID, Entries: entries})
	}
	return transcripts, rows.Err()
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func loadVideoMeta(db *sql.DB) ([]model.VideoMeta, error) {
	rows, err := db.Query(`SELECT video_id, title, channel_id, channel_title, published_at FROM video_meta`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metas []model.VideoMeta
	for rows.Next() {
		var m model.VideoMeta
		if err := rows.Scan(&m.VideoID, &m.Title, &m.ChannelID, &m.ChannelTitle, &m.PublishedAt); err != nil {
			return nil, err
		}
		metas = append(metas, m)
	}
	return metas, rows.Err()
}
