package xmltv

import (
	"encoding/xml"
	"strings"
)

// XmlTV XMLTV格式的EPG
type XmlTV struct {
	XMLName           xml.Name       `xml:"tv"`
	SourceInfoUrl     string         `xml:"source-info-url,attr,omitempty"`
	SourceInfoName    string         `xml:"source-info-name,attr,omitempty"`
	GeneratorInfoName string         `xml:"generator-info-name,attr,omitempty"`
	GeneratorInfoUrl  string         `xml:"generator-info-url,attr,omitempty"`
	Channels          []XmlChannel   `xml:"channel,omitempty"`
	Programmes        []XmlProgramme `xml:"programme,omitempty"`
}

type XmlChannel struct {
	Id           string    `xml:"id,attr"`
	DisplayNames []XmlText `xml:"display-name"`
	Icons        []XmlIcon `xml:"icon,omitempty"`
}

type XmlProgramme struct {
	Start       string          `xml:"start,attr"`
	Stop        string          `xml:"stop,attr"`
	Channel     string          `xml:"channel,attr"`
	Titles      []XmlText       `xml:"title"`
	Descs       []XmlText       `xml:"desc,omitempty"`
	Credits     *XmlCredits     `xml:"credits,omitempty"`
	Categories  []XmlText       `xml:"category,omitempty"`
	EpisodeNums []XmlEpisodeNum `xml:"episode-num,omitempty"`
	Ratings     []XmlRating     `xml:"rating,omitempty"`
}

type XmlText struct {
	Lang  string `xml:"lang,attr,omitempty"`
	Value string `xml:",chardata"`
}

type XmlIcon struct {
	Src string `xml:"src,attr"`
}

type XmlEpisodeNum struct {
	System string `xml:"system,attr,omitempty"`
	Value  string `xml:",chardata"`
}

type XmlRating struct {
	System string `xml:"system,attr,omitempty"`
	Value  string `xml:"value"`
}

type XmlActor struct {
	Role  string `xml:"role,attr,omitempty"`
	Value string `xml:",chardata"`
}

// XmlCredits 演职人员，子元素顺序与XMLTV DTD一致
type XmlCredits struct {
	Directors    []XmlText  `xml:"director,omitempty"`
	Actors       []XmlActor `xml:"actor,omitempty"`
	Writers      []XmlText  `xml:"writer,omitempty"`
	Adapters     []XmlText  `xml:"adapter,omitempty"`
	Producers    []XmlText  `xml:"producer,omitempty"`
	Composers    []XmlText  `xml:"composer,omitempty"`
	Editors      []XmlText  `xml:"editor,omitempty"`
	Presenters   []XmlText  `xml:"presenter,omitempty"`
	Commentators []XmlText  `xml:"commentator,omitempty"`
	Guests       []XmlText  `xml:"guest,omitempty"`
}

// firstText 返回第一个非空的文本
func firstText(texts []XmlText) string {
	for _, text := range texts {
		if v := strings.TrimSpace(text.Value); v != "" {
			return v
		}
	}
	return ""
}
