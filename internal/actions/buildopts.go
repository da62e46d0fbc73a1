package actions

import "encoding/json"

// CargoOptions is the decoded shape of the `CARGO_OPTIONS` env var (§6): a
// JSON-encoded description of the cargo subcommand to run.
type CargoOptions struct {
	Subcommand string   `json:"subcommand"`
	Package    []string `json:"package"`
	Features   []string `json:"features"`
	Release    bool     `json:"release"`
	Extra      []string `json:"args"`
}

// DecodeCargoOptions parses the CARGO_OPTIONS env value. An empty string
// decodes to the zero value with subcommand defaulted to "build".
func DecodeCargoOptions(raw string) (CargoOptions, error) {
	opts := CargoOptions{Subcommand: "build"}
	if raw == "" {
		return opts, nil
	}
	if err := json.Unmarshal([]byte(raw), &opts); err != nil {
		return CargoOptions{}, err
	}
	if opts.Subcommand == "" {
		opts.Subcommand = "build"
	}
	return opts, nil
}

// Args renders opts as cargo command-line arguments, not including the
// "cargo"/"cargo-zigbuild" binary name itself.
func (o CargoOptions) Args() []string {
	args := []string{o.Subcommand}
	for _, pkg := range o.Package {
		args = append(args, "-p", pkg)
	}
	for _, feature := range o.Features {
		args = append(args, "--features", feature)
	}
	if o.Release {
		args = append(args, "--release")
	}
	args = append(args, o.Extra...)
	return args
}
