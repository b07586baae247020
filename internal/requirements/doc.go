// Package requirements parses dependency manifests and installed-set locks.
//
// A [Manifest] is the ordered content of a pip requirements file. Parsing
// checks the syntax pip would reject (malformed names, operators, versions,
// unknown options) and pins that contradict each other, so an unusable
// manifest is reported before any image is pulled.
//
// A [Lock] is the set of packages an installer reports after installation,
// in "name==version" form. Locks are kept sorted by normalized name so that
// two installs of the same manifest produce byte-identical locks and equal
// digests regardless of the order the installer printed them in.
package requirements
