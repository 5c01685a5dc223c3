// Package language normalizes BCP 47 language tags for caption track
// selection and speech-to-text language hints.
package language
