package irc

// Numeric replies handled by the Session.
const (
	rplWelcome  = "001" // :Welcome message
	rplYourhost = "002" // :Your host is...
	rplCreated  = "003" // :This server was created...
	rplMyinfo   = "004" // <servername> <version> <umodes> <chan modes>
	rplIsupport = "005" // 1*13<TOKEN[=value]> :are supported by this server

	rplUmodeis     = "221" // <modes>
	rplLuserclient = "251" // :<int> users and <int> services on <int> servers
	rplLuserme     = "255" // :I have <int> clients and <int> servers

	rplAway          = "301" // <nick> :<away message>
	rplUnaway        = "305" // :You are no longer marked as being away
	rplNowaway       = "306" // :You have been marked as being away
	rplWhoisuser     = "311" // <nick> <user> <host> * :<realname>
	rplWhoisserver   = "312" // <nick> <server> :<server info>
	rplEndofwho      = "315" // <name> :End of WHO list
	rplEndofwhois    = "318" // <nick> :End of WHOIS list
	rplWhoischannels = "319" // <nick> :*( (@/+) <channel> " " )
	rplListstart     = "321" // Channel :Users  Name
	rplList          = "322" // <channel> <# of visible members> <topic>
	rplListend       = "323" // :End of list
	rplChannelmodeis = "324" // <channel> <modes> <mode params>
	rplWhoisaccount  = "330" // <nick> <account> :is logged in as
	rplNotopic       = "331" // <channel> :No topic set
	rplTopic         = "332" // <channel> <topic>
	rplTopicwhotime  = "333" // <channel> <nick> <setat>
	rplInviting      = "341" // <nick> <channel>
	rplWhoreply      = "352" // <channel> <user> <host> <server> <nick> <flags> :<hopcount> <realname>
	rplNamreply      = "353" // <=/*/@> <channel> :1*(@/ /+user)
	rplWhospcrpl     = "354" // WHOX reply, fields depend on the request
	rplEndofnames    = "366" // <channel> :End of names list
	rplMotd          = "372" // :- <text>
	rplMotdstart     = "375" // :- <servername> Message of the day -
	rplEndofmotd     = "376" // :End of MOTD command
	rplHostHidden    = "396" // <host> :is now your displayed host

	errUnknowncommand = "421" // <command> :Unknown command
	errNomotd         = "422" // :MOTD file missing
	errNicknameinuse  = "433" // <nick> :Nickname in use

	rplMononline     = "730" // <nick> :target[!user@host][,target[!user@host]]*
	rplMonoffline    = "731" // <nick> :target[,target2]*
	rplMonlist       = "732" // <nick> :target[,target2]*
	rplEndofmonlist  = "733" // <nick> :End of MONITOR list
	errMonlistisfull = "734" // <nick> <limit> <targets> :Monitor list is full.

	rplWhoiskeyvalue     = "760" // <target> <key> <visibility> :<value>
	rplKeyvalue          = "761" // <target> <key> <visibility> :<value>
	rplMetadataend       = "762" // :end of metadata
	rplKeynotset         = "766" // <target> <key> :key not set
	rplMetadatasubok     = "770" // :<key1> [<key2> ...]
	rplMetadataunsubok   = "771" // :<key1> [<key2> ...]
	rplMetadatasubs      = "772" // :<key1> [<key2> ...]
	rplMetadatasynclater = "774" // <target> [<retryafter>]

	rplLoggedin    = "900" // <nick> <nick>!<ident>@<host> <account> :You are now logged in as <user>
	errNicklocked  = "902" // :You must use a nick assigned to you
	rplSaslsuccess = "903" // :SASL authentication successful
	errSaslfail    = "904" // :SASL authentication failed
	errSasltoolong = "905" // :SASL message too long
	errSaslaborted = "906" // :SASL authentication aborted
	errSaslalready = "907" // :You have already authenticated using SASL
	rplSaslmechs   = "908" // <mechanisms> :are available SASL mechanisms
)
