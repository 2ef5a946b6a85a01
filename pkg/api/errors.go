package api

import "errors"

var errUserVanished = errors.New("user disappeared between insert and select")
