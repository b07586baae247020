package launchfile

import (
	"strconv"

	"github.com/cruciblehq/cradle/internal"
)

// Image label keys. Full label names are produced by [internal.Label].
const (
	LabelName         = "name"
	LabelEntrypoint   = "entrypoint"
	LabelPort         = "port"
	LabelDependencies = "dependencies"
)

// Labels recorded on the built image.
//
// dependencies is the digest of the installed dependency set. The entry
// point label is omitted when no script can be derived from the command.
func (f *File) ImageLabels(dependencies string) map[string]string {
	labels := map[string]string{
		internal.Label(LabelName):         f.Name,
		internal.Label(LabelPort):         strconv.Itoa(f.Port),
		internal.Label(LabelDependencies): dependencies,
	}
	if ep := f.EntrypointPath(); ep != "" {
		labels[internal.Label(LabelEntrypoint)] = ep
	}
	return labels
}
