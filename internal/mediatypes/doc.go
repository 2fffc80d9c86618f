// Package mediatypes classifies files by extension.
//
// Every regular file under the media root is indexed regardless of type;
// this package only answers whether a thumbnail can be rendered for it and
// which MIME type to serve it with.
package mediatypes
