package config

// defaultDocument is the config document written on first start and used as
// the fallback when the on-disk file is missing or unparsable. The document
// is user-editable, so readers must tolerate missing keys; these are only
// the values the engine itself consults.
const defaultDocument = `{
  "clipboardStore": {
    "audio": {
      "copy": false
    },
    "content": {
      "copyPlain": false,
      "pastePlain": false,
      "autoSort": true,
      "showSourceApp": true,
      "codeDetection": false,
      "colorDetection": true
    },
    "history": {
      "retainDays": 0,
      "retainCount": 0,
      "unit": 2
    },
    "shortcutBlacklist": []
  },
  "globalStore": {
    "cloudSync": {
      "serverConfig": {
        "url": "",
        "username": "",
        "password": "",
        "path": "ecopaste-sync",
        "timeout": 30000
      },
      "syncModeConfig": {
        "onlyFavorites": false,
        "includeText": true,
        "includeHtml": true,
        "includeRtf": true,
        "includeMarkdown": true,
        "includeImages": true,
        "includeFiles": true,
        "conflictResolution": "merge"
      },
      "autoSyncSettings": {
        "enabled": false,
        "intervalHours": 1
      }
    }
  }
}`
