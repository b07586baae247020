// Package launchfile reads and validates launch definitions.
//
// A launch definition names everything needed to turn a source tree into a
// runnable image: the base image, the dependency manifest, the application
// directory, the working directory inside the image, the single declared
// port and the start command. Optional setup steps run before dependencies
// are installed.
//
// Every field has a default, so a source tree with only app.py and
// requirements.txt builds without a launch file:
//
//	name: app
//	base: python:3.10-slim
//	manifest: requirements.txt
//	source: .
//	workdir: /app
//	port: 7860
//	command: ["python", "app.py"]
//
// Relative paths are resolved against the directory containing the launch
// file.
package launchfile
