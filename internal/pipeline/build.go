package pipeline

import (
	"tunetag/internal/config"
	"tunetag/internal/fetch"
	"tunetag/internal/fingerprint"
	"tunetag/internal/logger"
	"tunetag/internal/lyrics"
	"tunetag/internal/metadata"
	"tunetag/internal/provider/acoustid"
	"tunetag/internal/provider/coverart"
	"tunetag/internal/provider/deezer"
	"tunetag/internal/provider/discogs"
	"tunetag/internal/provider/itunes"
	"tunetag/internal/provider/lastfm"
	"tunetag/internal/provider/musicbrainz"
	"tunetag/internal/retry"
	"tunetag/internal/workpool"
)

// Build wires a Processor from cfg: one worker pool shared by yt-dlp,
// fpcalc and the tagger, the configured metadata sources, and a yt-dlp
// fetcher writing into download_dir.
func Build(cfg config.Config, log *logger.Logger) *Processor {
	pool := workpool.New(cfg.ParallelJobs)
	tagger := metadata.NewTagger(pool, log.Named("tagger"))

	resolver := metadata.NewResolver(Sources(cfg, pool, tagger, log), metadata.Options{
		Enable:         cfg.Lookup.Enable,
		MinConfidence:  cfg.Lookup.MinConfidence,
		PreferExisting: cfg.Lookup.PreferExistingTags,
		FetchCoverArt:  cfg.Lookup.FetchCoverArt,
		FetchLyrics:    cfg.Lookup.FetchLyrics,
		RequestTimeout: cfg.Lookup.RequestTimeout,
	}, log.Named("resolver"))

	fetcher := fetch.NewYTDLP(fetch.Options{
		OutDir:         cfg.DownloadDir,
		AudioFormat:    cfg.AudioFormat,
		CookiesBrowser: cfg.CookiesBrowser,
		Policy: retry.Policy{
			MaxAttempts:  cfg.RetryAttempts(),
			InitialDelay: cfg.Retry.InitialDelay,
		},
	}, pool, log.Named("fetch"))

	return New(resolver, tagger, fetcher, Options{
		LibraryDir: cfg.LibraryDir,
		Parallel:   cfg.ParallelJobs,
	}, log)
}

// Sources returns the adapters enabled by the metadata_lookup section.
// Sources without the credentials they need are left out.
func Sources(cfg config.Config, pool *workpool.Pool, tags metadata.TagReader, log *logger.Logger) metadata.Sources {
	l := cfg.Lookup
	src := metadata.Sources{Tags: tags}
	if !l.Enable {
		return src
	}

	if l.AcoustIDAPIKey != "" {
		fp := fingerprint.New(pool)
		if fp.Available() {
			src.Identifier = acoustid.New(l.AcoustIDAPIKey, fp)
		} else {
			log.Warn("fpcalc not found, acoustic identification disabled")
		}
	}

	src.Catalog = musicbrainz.New(l.MusicBrainzUserAgent)

	if l.FetchCoverArt {
		src.Covers = coverart.New(l.MusicBrainzUserAgent)
	}

	if l.LastFMAPIKey != "" {
		src.Secondary = lastfm.New(l.LastFMAPIKey)
	}

	var tertiary []metadata.Enricher
	for _, name := range l.TertiarySources {
		switch name {
		case "discogs":
			if l.Discogs.UserAgent != "" {
				tertiary = append(tertiary, discogs.New(l.Discogs.UserAgent, l.Discogs.Token))
			}
		case "itunes":
			tertiary = append(tertiary, itunes.New(l.MusicBrainzUserAgent))
		case "deezer":
			tertiary = append(tertiary, deezer.New(l.MusicBrainzUserAgent))
		}
	}
	if len(tertiary) > 0 {
		src.Tertiary = metadata.NewChainEnricher(tertiary, log.Named("tertiary"))
	}

	if l.FetchLyrics {
		src.Lyrics = lyrics.NewClient(l.MusicBrainzUserAgent)
	}

	return src
}
