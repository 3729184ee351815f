package site

import (
	"bytes"
	"html/template"
)

type IndexPageData struct {
	IdentityMode IdentityMode
	// InjectedToken is embedded in the page in injected mode; empty in
	// the other modes.
	InjectedToken string
	FeedHTML      template.HTML
}

var indexPageTmpl = template.Must(template.New("index").Parse(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <meta name="craft-stories-identity-mode" content="{{.IdentityMode}}" />
    <meta name="craft-stories-identity-token" content="{{.InjectedToken}}" />
    <title>Craft Stories</title>
    <style>
      :root {
        --bg: #14100c;
        --panel: rgba(255, 255, 255, 0.05);
        --text: #f3ece2;
        --muted: #b3a794;
        --border: rgba(255, 255, 255, 0.12);
        --accent: #e8a757;
        --bad: #fb7185;
        --sans: ui-sans-serif, system-ui, -apple-system, Segoe UI, Roboto, Helvetica, Arial;
      }
      * { box-sizing: border-box; }
      body {
        margin: 0;
        font-family: var(--sans);
        color: var(--text);
        background: radial-gradient(1000px 700px at 20% 0%, rgba(232,167,87,0.16), transparent 55%), var(--bg);
      }
      .wrap { max-width: 1040px; margin: 0 auto; padding: 24px 16px; }
      h1 { font-size: 24px; margin: 0 0 4px 0; }
      .subtitle { color: var(--muted); margin-bottom: 20px; }
      .panel {
        border: 1px solid var(--border);
        background: var(--panel);
        border-radius: 14px;
        padding: 16px;
        margin-bottom: 18px;
      }
      .grid { display: grid; grid-template-columns: 1fr 1fr; gap: 12px; }
      @media (max-width: 760px) { .grid { grid-template-columns: 1fr; } }
      label { display: block; font-size: 13px; color: var(--muted); margin-bottom: 4px; }
      input, textarea, select {
        width: 100%;
        padding: 9px 10px;
        border-radius: 10px;
        border: 1px solid var(--border);
        background: rgba(0,0,0,0.25);
        color: var(--text);
      }
      textarea { min-height: 90px; resize: vertical; }
      .btn {
        border: 1px solid var(--border);
        background: rgba(232,167,87,0.18);
        color: var(--text);
        border-radius: 10px;
        padding: 10px 14px;
        cursor: pointer;
      }
      .btn:disabled { opacity: 0.5; cursor: not-allowed; }
      .row { display: flex; gap: 10px; align-items: center; margin-top: 12px; flex-wrap: wrap; }
      #status { color: var(--muted); font-size: 13px; }
      #status.error { color: var(--bad); }
      .hidden { display: none; }
      #postsList { display: grid; grid-template-columns: repeat(auto-fill, minmax(220px, 1fr)); gap: 12px; }
      .post-card {
        border: 1px solid var(--border);
        border-radius: 12px;
        overflow: hidden;
        cursor: pointer;
        background: rgba(0,0,0,0.2);
      }
      .post-card img { width: 100%; height: 130px; object-fit: cover; display: block; }
      .post-card-body { padding: 10px; }
      .post-card-body h3 { margin: 0 0 4px 0; font-size: 15px; }
      .post-card-body p { margin: 0; color: var(--muted); font-size: 13px; }
      .feed-empty, .feed-error { color: var(--muted); }
      .feed-error { color: var(--bad); }
      #postModal {
        display: none;
        position: fixed; inset: 0;
        background: rgba(0,0,0,0.65);
        padding: 40px 16px;
        overflow: auto;
      }
      #postModal .inner {
        max-width: 620px; margin: 0 auto;
        background: #1d1712;
        border: 1px solid var(--border);
        border-radius: 14px;
        padding: 18px;
      }
      #postModal img { max-width: 100%; border-radius: 10px; }
      #postModal .close { float: right; cursor: pointer; color: var(--muted); }
    </style>
  </head>
  <body>
    <div class="wrap">
      <h1>Craft Stories</h1>
      <p class="subtitle">Tell the story behind a handcrafted product and share it with the feed.</p>

      <div class="panel" id="authPanel">
        <div class="row">
          <span id="authStatus">Checking identity…</span>
          <button class="btn hidden" id="signInBtn">Sign in</button>
          <button class="btn hidden" id="signOutBtn">Sign out</button>
        </div>
      </div>

      <form class="panel" id="craftForm">
        <div class="grid">
          <div><label for="name">Artisan name</label><input id="name" name="name" /></div>
          <div><label for="age">Age</label><input id="age" name="age" /></div>
          <div><label for="place">Place</label><input id="place" name="place" /></div>
          <div><label for="productName">Product name</label><input id="productName" name="productName" /></div>
          <div><label for="craftType">Craft type</label><input id="craftType" name="craftType" /></div>
          <div><label for="materials">Materials</label><input id="materials" name="materials" /></div>
          <div><label for="inspiration">Inspiration</label><input id="inspiration" name="inspiration" /></div>
          <div><label for="audience">Target audience</label><input id="audience" name="audience" /></div>
          <div><label for="language">Language</label><input id="language" name="language" /></div>
          <div><label for="tone">Tone</label><input id="tone" name="tone" /></div>
          <div><label for="image">Image</label><input id="image" name="image" type="file" accept="image/*" /></div>
        </div>
        <div class="row">
          <button class="btn" id="generateBtn" type="button">Generate story</button>
          <span id="status"></span>
        </div>
        <div id="results" class="hidden">
          <label for="story">Story</label>
          <textarea id="story" name="story"></textarea>
          <label for="tags">Tags</label>
          <input id="tags" name="tags" />
          <div class="row">
            <button class="btn" id="publishBtn" type="button">Publish</button>
            <button class="btn" id="cancelBtn" type="button">Cancel</button>
          </div>
        </div>
      </form>

      <div class="panel">
        <h1>Recent stories</h1>
        <div id="postsList">{{.FeedHTML}}</div>
      </div>
    </div>

    <div id="postModal">
      <div class="inner">
        <span class="close">&times;</span>
        <h2 id="modalTitle"></h2>
        <img id="modalImage" alt="" />
        <p id="modalStory"></p>
        <p id="modalTags"></p>
      </div>
    </div>

    <script>
      const $ = s => document.querySelector(s);
      const identityMode = document.querySelector('meta[name="craft-stories-identity-mode"]').content;
      let identityToken = document.querySelector('meta[name="craft-stories-identity-token"]').content || null;

      function escapeHtml(s) {
        if (!s) return '';
        return s.replace(/[&<>"']/g, m => ({ '&':'&amp;','<':'&lt;','>':'&gt;','"':'&quot;',"'":'&#39;' }[m]));
      }

      function setStatus(msg, isError) {
        const el = $('#status');
        el.textContent = msg || '';
        el.className = isError ? 'error' : '';
      }

      function authHeaders() {
        return identityToken ? { 'Authorization': 'Bearer ' + identityToken } : {};
      }

      function renderAuth() {
        const present = !!identityToken;
        $('#authStatus').textContent = present ? 'Identity ready.' : 'No identity: publishing is disabled.';
        $('#signInBtn').classList.toggle('hidden', identityMode !== 'session' || present);
        $('#signOutBtn').classList.toggle('hidden', identityMode !== 'session' || !present);
      }

      // Exposed setter for an embedding parent context (external mode).
      window.setIdentityToken = async function(token) {
        const resp = await fetch('/api/identity/token', {
          method: 'POST',
          headers: { 'Content-Type': 'application/json' },
          body: JSON.stringify({ token })
        });
        const data = await resp.json();
        if (!data.ok) throw new Error(data.error || 'failed to set identity token');
        identityToken = token;
        renderAuth();
      };

      async function signIn() {
        const subject = prompt('Sign in as (organization id):');
        if (!subject) return;
        const resp = await fetch('/api/auth/signin', {
          method: 'POST',
          headers: { 'Content-Type': 'application/json' },
          body: JSON.stringify({ subject })
        });
        const data = await resp.json();
        if (!data.ok) { alert(data.error || 'sign-in failed'); return; }
        identityToken = data.token;
        renderAuth();
      }

      async function signOut() {
        await fetch('/api/auth/signout', { method: 'POST', headers: authHeaders() });
        identityToken = null;
        renderAuth();
      }

      function getFormValues() {
        const fd = new FormData($('#craftForm'));
        const obj = {};
        for (const [k, v] of fd.entries()) {
          if (k === 'image') continue;
          obj[k] = v;
        }
        return obj;
      }

      function buildDescription(v) {
        return [v.productName, v.craftType, v.materials].filter(Boolean).join(', ');
      }

      async function onGenerate() {
        const btn = $('#generateBtn');
        btn.disabled = true;
        setStatus('Generating…');
        try {
          const values = getFormValues();
          if (!values.name || !values.productName) {
            alert('Fill in the artisan name and product name first.');
            return;
          }
          if (identityMode !== 'session' && !identityToken) {
            alert('No identity token has been supplied; cannot generate.');
            setStatus('Identity required.', true);
            return;
          }
          const payload = Object.assign({}, values, { description: buildDescription(values) });
          const resp = await fetch('/api/generate', {
            method: 'POST',
            headers: Object.assign({ 'Content-Type': 'application/json' }, authHeaders()),
            body: JSON.stringify(payload)
          });
          const data = await resp.json();
          if (!data.ok) throw new Error(data.error || 'Unknown error');
          $('#story').value = data.story || '';
          $('#tags').value = (data.tags || []).join(', ');
          $('#results').classList.remove('hidden');
          setStatus('Story ready. Review and publish.');
        } catch (err) {
          setStatus('Generation failed: ' + err.message, true);
          alert('Generation failed: ' + err.message);
        } finally {
          btn.disabled = false;
        }
      }

      async function onPublish() {
        const btn = $('#publishBtn');
        btn.disabled = true;
        setStatus('');
        try {
          if (!identityToken) {
            alert('Please sign in before publishing.');
            setStatus('Authentication required.', true);
            return;
          }
          const form = $('#craftForm');
          const fd = new FormData(form);
          setStatus('Publishing…');
          const resp = await fetch('/api/publish', {
            method: 'POST',
            headers: authHeaders(),
            body: fd
          });
          const data = await resp.json();
          if (!data.ok) throw new Error(data.error || 'Unknown error');
          prependCard(data.post);
          $('#results').classList.add('hidden');
          form.reset();
          setStatus('Published!');
        } catch (err) {
          setStatus('Error: ' + err.message, true);
        } finally {
          btn.disabled = false;
        }
      }

      function buildCard(post) {
        const card = document.createElement('div');
        card.className = 'post-card';
        card.innerHTML =
          (post.imageUrl ? '<img src="' + post.imageUrl + '" alt="' + escapeHtml(post.productName) + '">' : '') +
          '<div class="post-card-body"><h3>' + escapeHtml(post.productName) + '</h3>' +
          '<p>By ' + escapeHtml(post.name) + ' from ' + escapeHtml(post.place) + '</p></div>';
        card.addEventListener('click', () => openModal(post));
        postsById[post.id] = post;
        return card;
      }

      function prependCard(post) {
        const list = $('#postsList');
        const empty = list.querySelector('.feed-empty');
        if (empty) empty.remove();
        list.prepend(buildCard(post));
      }

      function openModal(post) {
        $('#modalTitle').textContent = post.productName || '';
        $('#modalStory').textContent = post.story || '';
        $('#modalTags').textContent = (post.tags || []).join(', ');
        const img = $('#modalImage');
        if (post.imageUrl) {
          img.src = post.imageUrl;
          img.alt = post.productName || '';
          img.style.display = 'block';
        } else {
          img.style.display = 'none';
        }
        $('#postModal').style.display = 'block';
      }

      const postsById = {};

      async function loadPosts() {
        const list = $('#postsList');
        try {
          const resp = await fetch('/api/feed');
          const data = await resp.json();
          if (!data.ok) throw new Error(data.error || 'feed failed');
          list.innerHTML = '';
          if (!data.posts.length) {
            list.innerHTML = '<p class="feed-empty">No posts yet. Publish the first story!</p>';
            return;
          }
          // The feed arrives newest first; append to keep that order.
          for (const post of data.posts) {
            list.append(buildCard(post));
          }
        } catch (err) {
          list.innerHTML = '<p class="feed-error">Error loading posts.</p>';
        }
      }

      document.addEventListener('DOMContentLoaded', () => {
        $('#generateBtn').addEventListener('click', onGenerate);
        $('#publishBtn').addEventListener('click', onPublish);
        $('#cancelBtn').addEventListener('click', () => $('#results').classList.add('hidden'));
        $('#signInBtn').addEventListener('click', signIn);
        $('#signOutBtn').addEventListener('click', signOut);
        $('#postModal .close').onclick = () => $('#postModal').style.display = 'none';
        window.onclick = e => { if (e.target === $('#postModal')) $('#postModal').style.display = 'none'; };
        renderAuth();
        loadPosts();
      });
    </script>
  </body>
</html>
`))

// RenderIndexHTML renders the studio page with the current feed and, in
// injected mode, the page-lifetime identity token.
func RenderIndexHTML(data IndexPageData) ([]byte, error) {
	var buf bytes.Buffer
	if err := indexPageTmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
