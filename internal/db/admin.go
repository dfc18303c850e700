package db

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/arlabel/internal/monitoring"
	"github.com/banshee-data/arlabel/internal/security"
	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"
)

// AttachAdminRoutes mounts a tailsql browser, a backup download and a
// placements listing on the debug mux served at /debug/.
func (j *Journal) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(j.db.Path()), j.db.DB, &tailsql.DBOptions{
		Label: "Placement journal",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.HandleFunc("placements", "Placements in the open session (JSON)", func(w http.ResponseWriter, r *http.Request) {
		records, err := j.Placements(r.Context(), r.URL.Query().Get("session"))
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to query placements: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(records)
	})

	debug.HandleFunc("sessions", "Recent journal sessions (JSON)", func(w http.ResponseWriter, r *http.Request) {
		sessions, err := j.Sessions(r.Context(), 100)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to query sessions: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sessions)
	})

	debug.Handle("backup", "Create and download a backup of the journal now", http.HandlerFunc(j.serveBackup))
	return nil
}

func (j *Journal) serveBackup(w http.ResponseWriter, r *http.Request) {
	session := j.SessionID()
	if session == "" {
		session = "closed"
	}
	name := fmt.Sprintf("arlabel-%s-%d.db", security.SanitizeFilename(session), time.Now().UnixNano())
	backupPath := filepath.Join(os.TempDir(), name)
	if err := security.ValidatePathWithinDirectory(backupPath, os.TempDir()); err != nil {
		http.Error(w, fmt.Sprintf("Invalid backup path: %v", err), http.StatusInternalServerError)
		return
	}
	if _, err := j.db.ExecContext(r.Context(), "VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := os.Remove(backupPath); err != nil {
			monitoring.Logf("Failed to remove backup file: %v", err)
		}
	}()

	backupFile, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer backupFile.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", filepath.Base(backupPath)))
	w.Header().Set("Content-Type", "application/gzip")

	gzipWriter := gzip.NewWriter(w)
	defer gzipWriter.Close()
	if _, err := io.Copy(gzipWriter, backupFile); err != nil {
		monitoring.Logf("Failed to write backup: %v", err)
	}
}
