// Package storage manages the page files and archives of a mirror.
//
// Every write goes to a temporary file next to its target and is renamed into
// place, so an interrupted run never leaves a half-written page that looks
// complete. Pages are named by zero-padded index so that sorting names gives
// reading order:
//
//	files, err := storage.NewManager("downloads")
//	if err != nil {
//	    return err
//	}
//	target := filepath.Join(dir, storage.PageName(3, "https://cdn/x/abc.webp")) // 0003.webp
//	if !files.Exists(target) {
//	    _, err = files.Save(target, body)
//	}
package storage
