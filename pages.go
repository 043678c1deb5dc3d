package main

import "fmt"

// PageSize is the client-facing page size. Provider pages of other sizes are
// mapped onto it with GetResPages, so page N covers the same window no matter
// which provider answers.
const PageSize int = 30

type PageSrc struct {
	Page  int
	First int
	Last  int
}

// GetResPages lists the provider pages (of resPageSize) and the slice of
// each needed to cover client page srcPage (of srcPageSize).
func GetResPages(srcPage int, srcPageSize int, resPageSize int) []PageSrc {
	var startOffset = (srcPage - 1) * srcPageSize
	var endOffset = startOffset + srcPageSize
	var firstPage = 1 + (startOffset / resPageSize)
	var first = (firstPage - 1) * resPageSize
	var last = first + resPageSize
	pages := []PageSrc{{
		Page:  firstPage,
		First: startOffset - first,
		Last:  min(resPageSize, endOffset-first),
	}}
	for last < endOffset {
		remain := endOffset - (last / resPageSize * resPageSize)
		last += resPageSize
		lastPage := last / resPageSize
		pages = append(pages, PageSrc{
			Page:  lastPage,
			First: 0,
			Last:  min(resPageSize, remain),
		})
	}
	return pages
}

func (p *PageSrc) String() string {
	return fmt.Sprintf("#%d [%d:%d]", p.Page, p.First, p.Last)
}
