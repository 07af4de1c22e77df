package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Profile is one named PostgreSQL connection.
type Profile struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// Profiles maps profile names to connections.
type Profiles map[string]Profile

type profilesFile struct {
	Profiles Profiles `yaml:"profiles"`
}

// LoadProfiles reads a YAML document of the form
//
//	profiles:
//	  office:
//	    host: 10.0.0.5
//	    database: settleflow
func LoadProfiles(path string) (Profiles, error) {
	if path == "" {
		return nil, errors.New("no database profiles file configured")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	var doc profilesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse profiles %s: %w", path, err)
	}
	if len(doc.Profiles) == 0 {
		return nil, fmt.Errorf("parse profiles %s: no profiles defined", path)
	}
	for name, p := range doc.Profiles {
		if p.Host == "" || p.Database == "" {
			return nil, fmt.Errorf("profile %q: host and database are required", name)
		}
	}
	return doc.Profiles, nil
}

// Select returns the named profile. There is no implicit default.
func (ps Profiles) Select(name string) (Profile, error) {
	if name == "" {
		return Profile{}, errors.New("no database profile selected")
	}
	p, ok := ps[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown database profile %q (have %v)", name, ps.Names())
	}
	return p, nil
}

func (ps Profiles) Names() []string {
	names := make([]string, 0, len(ps))
	for n := range ps {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// URL renders the profile as a postgres:// connection string.
func (p Profile) URL() string {
	port := p.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(p.Host, strconv.Itoa(port)),
		Path:   "/" + p.Database,
	}
	if p.User != "" {
		if p.Password != "" {
			u.User = url.UserPassword(p.User, p.Password)
		} else {
			u.User = url.User(p.User)
		}
	}
	if p.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {p.SSLMode}}.Encode()
	}
	return u.String()
}
