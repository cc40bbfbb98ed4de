package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/mod/semver"

	"github.com/oszuidwest/zwfm-voice/internal/types"
	"github.com/oszuidwest/zwfm-voice/internal/util"
)

const (
	githubRepo           = "oszuidwest/zwfm-voice"
	githubAPIBase        = "https://api.github.com"
	versionCheckInterval = 24 * time.Hour
	versionCheckDelay    = 30 * time.Second // Delay before first check to avoid blocking startup
	versionCheckTimeout  = 30 * time.Second // HTTP request timeout
	versionMaxRetries    = 3                // Max retries per check cycle
	versionRetryInitial  = 1 * time.Minute  // First delay between retries, doubled per attempt
	versionRetryMax      = 10 * time.Minute
)

// VersionChecker checks for new releases and reports update availability. It is safe for concurrent use.
type VersionChecker struct {
	client *resty.Client

	mu     sync.RWMutex
	latest string
	etag   string // For conditional requests (304 Not Modified)

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewVersionChecker returns a VersionChecker querying the GitHub API at apiBase.
// Call Start to begin periodic checks.
func NewVersionChecker(apiBase string) *VersionChecker {
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(apiBase, "/")).
		SetTimeout(versionCheckTimeout).
		SetHeader("Accept", "application/vnd.github.v3+json").
		SetHeader("User-Agent", "zwfm-voice/"+Version)

	return &VersionChecker{
		client: client,
		stopCh: make(chan struct{}),
	}
}

// Start runs the check loop in the background until Stop is called.
func (vc *VersionChecker) Start() {
	go vc.run()
}

// Stop stops the version checker.
func (vc *VersionChecker) Stop() {
	vc.stopOnce.Do(func() { close(vc.stopCh) })
}

// run executes the version check loop.
func (vc *VersionChecker) run() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in version checker", "panic", r)
		}
	}()

	select {
	case <-time.After(versionCheckDelay):
		vc.checkWithRetry()
	case <-vc.stopCh:
		return
	}

	ticker := time.NewTicker(versionCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			vc.checkWithRetry()
		case <-vc.stopCh:
			return
		}
	}
}

// checkWithRetry performs the version check with backoff between failures.
func (vc *VersionChecker) checkWithRetry() {
	for attempt := range versionMaxRetries {
		if vc.check(context.Background()) {
			return
		}
		if attempt < versionMaxRetries-1 {
			select {
			case <-time.After(util.RetryDelay(attempt, versionRetryInitial, versionRetryMax)):
			case <-vc.stopCh:
				return
			}
		}
	}
}

// githubRelease represents a release with version and status information.
type githubRelease struct {
	TagName    string `json:"tag_name"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
}

// check retrieves the latest release and reports whether the check succeeded.
// A false result means the check should be retried.
func (vc *VersionChecker) check(ctx context.Context) bool {
	vc.mu.RLock()
	etag := vc.etag
	vc.mu.RUnlock()

	var release githubRelease
	req := vc.client.R().SetContext(ctx).SetResult(&release)
	if etag != "" {
		req.SetHeader("If-None-Match", etag)
	}

	resp, err := req.Get("/repos/" + githubRepo + "/releases/latest")
	if err != nil {
		slog.Debug("version check failed", "error", err)
		return false
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusOK:
	case code == http.StatusNotModified, code == http.StatusNotFound:
		// Unchanged, or no releases yet
		return true
	case code == http.StatusForbidden, code == http.StatusTooManyRequests, code >= 500:
		return false
	default:
		return true
	}

	if release.Draft || release.Prerelease {
		return true
	}
	if release.TagName == "" {
		return false
	}

	vc.mu.Lock()
	vc.latest = normalizeVersion(release.TagName)
	if newEtag := resp.Header().Get("ETag"); newEtag != "" {
		vc.etag = newEtag
	}
	vc.mu.Unlock()

	return true
}

// Info returns the current version info for the frontend.
func (vc *VersionChecker) Info() types.VersionInfo {
	vc.mu.RLock()
	defer vc.mu.RUnlock()

	current := normalizeVersion(Version)
	info := types.VersionInfo{
		Current:   current,
		Latest:    vc.latest,
		Commit:    Commit,
		BuildTime: util.FormatHumanTime(BuildTime),
	}

	if vc.latest != "" && current != "dev" && current != "unknown" {
		info.UpdateAvail = isNewerVersion(vc.latest, current)
	}

	return info
}

// normalizeVersion returns a normalized version string.
func normalizeVersion(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}

// isNewerVersion reports whether latest is newer than current.
func isNewerVersion(latest, current string) bool {
	canonical := func(v string) string {
		v = strings.TrimSpace(v)
		if !strings.HasPrefix(v, "v") {
			v = "v" + v
		}
		return v
	}
	return semver.Compare(canonical(latest), canonical(current)) > 0
}
