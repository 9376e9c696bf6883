/* Generate audio files with AFSK frames for testing */
package main

import (
	viperwolf "github.com/doismellburning/viperwolf/src"
)

func main() {
	viperwolf.GenPacketsMain()
}
