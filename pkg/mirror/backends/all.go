package backends

import "github.com/dxforge/forge/pkg/mirror"

// Names lists every built-in backend.
var Names = []string{
	"dropbox", "gdrive", "github", "mega", "pinterest",
	"r2", "sketchfab", "soundcloud", "youtube",
}

// RegisterAll registers every built-in backend against the given
// credential source.
func RegisterAll(reg *mirror.Registry, creds CredentialSource) error {
	all := []mirror.Backend{
		&Dropbox{Creds: creds},
		&GDrive{Creds: creds},
		&GitHub{Creds: creds},
		&Mega{Creds: creds},
		&Pinterest{Creds: creds},
		&R2{Creds: creds},
		&Sketchfab{Creds: creds},
		&SoundCloud{Creds: creds},
		&YouTube{Creds: creds},
	}
	for _, b := range all {
		if err := reg.Register(b); err != nil {
			return err
		}
	}
	return nil
}
