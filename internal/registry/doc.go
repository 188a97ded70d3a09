// Package registry maps the names used in run configurations and on the
// command line to the compiled Go components that implement them.
//
// Modules register a model builder under the value of the `model`
// hyperparameter (e.g. "char_mlp") and tracking backends under the value of
// the --tracker flag (e.g. "log", "socketio"). At startup the application
// registers every core module and validates the result, so a typo in a
// config file fails before any training work begins.
package registry
