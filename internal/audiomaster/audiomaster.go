// Package audiomaster defines the optional loudness-mastering hook the
// transcoder runs on each canonical segment before concatenation. It is
// modeled on the original implementation's Auphonic client: upload a file,
// poll until the remote job completes, download the mastered result.
package audiomaster

import (
	"context"
	"io"
	"os"
)

// AudioMaster masters the audio track of a media file, returning the path
// to the mastered file (which may be the same path, or a new one the
// caller is responsible for cleaning up).
type AudioMaster interface {
	Master(ctx context.Context, path string) (string, error)
}

// NullAudioMaster is the default: it performs no remote processing and
// returns the input path unchanged. The transcoder uses it whenever no
// remote mastering client is configured.
type NullAudioMaster struct{}

// Master returns path unchanged.
func (NullAudioMaster) Master(_ context.Context, path string) (string, error) {
	return path, nil
}

// Uploader is the minimal remote client contract RemoteAudioMaster depends
// on, so tests can fake a mastering service without a network call.
type Uploader interface {
	Upload(ctx context.Context, path string) (jobID string, err error)
	Poll(ctx context.Context, jobID string) (done bool, resultURL string, err error)
	Download(ctx context.Context, resultURL string, dest io.Writer) error
}

// RemoteAudioMaster masters audio via an external loudness-normalization
// service reachable through Uploader. It is a construction-time error to
// configure RemoteAudioMaster without an Uploader.
type RemoteAudioMaster struct {
	Client   Uploader
	MaxPolls int
}

// NewRemote constructs a RemoteAudioMaster. Passing a nil client is a
// construction-time error since every call would fail identically.
func NewRemote(client Uploader) (*RemoteAudioMaster, error) {
	if client == nil {
		return nil, errNilClient
	}
	return &RemoteAudioMaster{Client: client, MaxPolls: defaultMaxPolls}, nil
}

const defaultMaxPolls = 60

var errNilClient = masterError("audiomaster: remote client is nil")

type masterError string

func (e masterError) Error() string { return string(e) }

// Master uploads path, polls until the remote job reports done, and
// downloads the mastered result to path+".mastered.m4a". It does not
// replace path; the transcoder decides whether to mux the mastered track
// back into the segment.
func (r *RemoteAudioMaster) Master(ctx context.Context, path string) (string, error) {
	jobID, err := r.Client.Upload(ctx, path)
	if err != nil {
		return "", err
	}

	polls := r.MaxPolls
	if polls <= 0 {
		polls = defaultMaxPolls
	}

	var resultURL string
	for i := 0; i < polls; i++ {
		done, url, err := r.Client.Poll(ctx, jobID)
		if err != nil {
			return "", err
		}
		if done {
			resultURL = url
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
	}
	if resultURL == "" {
		return "", masterError("audiomaster: job " + jobID + " did not complete")
	}

	dest := path + ".mastered.m4a"
	f, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := r.Client.Download(ctx, resultURL, f); err != nil {
		return "", err
	}
	return dest, nil
}
