package files

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AudioInfo holds information about an audio clip to be injected
type AudioInfo struct {
	// Path is the absolute path to the file
	Path string

	// Name is the filename without directory or extension
	Name string

	// Size is the file size in bytes
	Size int64
}

// supported clip formats; the decoder only speaks MP3 today
var audioExtensions = map[string]bool{
	".mp3": true,
}

// ValidateAudioFile checks that a clip exists, is readable, and has a
// supported format before the decoder touches it.
func ValidateAudioFile(path string) (AudioInfo, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return AudioInfo{}, fmt.Errorf("%s: failed to get absolute path: %w", path, err)
	}

	stat, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return AudioInfo{}, fmt.Errorf("%s: file does not exist", path)
		}
		return AudioInfo{}, fmt.Errorf("%s: failed to stat file: %w", path, err)
	}

	if stat.IsDir() {
		return AudioInfo{}, fmt.Errorf("%s: is a directory", path)
	}

	if stat.Size() == 0 {
		return AudioInfo{}, fmt.Errorf("%s: file is empty", path)
	}

	ext := strings.ToLower(filepath.Ext(absPath))
	if !audioExtensions[ext] {
		return AudioInfo{}, fmt.Errorf("%s: unsupported audio format %q (mp3 only)", path, ext)
	}

	// Check if file is readable
	file, err := os.Open(absPath)
	if err != nil {
		return AudioInfo{}, fmt.Errorf("%s: cannot open file (check permissions): %w", path, err)
	}
	file.Close()

	name := strings.TrimSuffix(filepath.Base(absPath), ext)

	return AudioInfo{
		Path: absPath,
		Name: name,
		Size: stat.Size(),
	}, nil
}
